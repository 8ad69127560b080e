package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrOpen is returned when a call is rejected by an open breaker.
var ErrOpen = eris.New("circuit open")

// BreakerState is the position of one circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig controls when a source's breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	// ResetTimeout is how long an open breaker waits before letting a
	// probe call through.
	ResetTimeout time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
}

// DefaultBreakerConfig returns the standard trip settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// Breaker is a circuit breaker for one enrichment source. A single
// successful probe in half-open closes it again.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker builds a Breaker, filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Call runs fn through the breaker. An open breaker rejects the call with
// ErrOpen without invoking fn.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn(ctx)
	b.observe(err)
	return err
}

// State reports the breaker's position, accounting for reset-timeout expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false
		}
		b.state = StateHalfOpen
	}
	return true
}

func (b *Breaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// SourceBreakers holds one breaker per enrichment source so a flapping API
// cannot starve the others.
type SourceBreakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewSourceBreakers builds an empty per-source breaker registry.
func NewSourceBreakers(cfg BreakerConfig) *SourceBreakers {
	return &SourceBreakers{cfg: cfg, breakers: map[string]*Breaker{}}
}

// Get returns the breaker for a source name, creating it on first use.
func (sb *SourceBreakers) Get(source string) *Breaker {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	b, ok := sb.breakers[source]
	if !ok {
		b = NewBreaker(sb.cfg)
		sb.breakers[source] = b
	}
	return b
}

// States snapshots every breaker's position for the metrics endpoint.
func (sb *SourceBreakers) States() map[string]string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	out := make(map[string]string, len(sb.breakers))
	for name, b := range sb.breakers {
		out[name] = b.State().String()
	}
	return out
}
