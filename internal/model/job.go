package model

import "time"

// SourceType tags the shape of one enrichment input.
type SourceType string

const (
	// SourceUpload is a file-upload dataset (XLSX or CSV), referenced by
	// local path or http(s)/ftp URL.
	SourceUpload SourceType = "upload"
	// SourceDatabase is an external relational database connection.
	SourceDatabase SourceType = "database"
	// SourceExternalAPI is an external API integration queried per
	// candidate.
	SourceExternalAPI SourceType = "external_api"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceUpload, SourceDatabase, SourceExternalAPI:
		return true
	}
	return false
}

// SourceConfig describes one enrichment data source plus its field mapping.
// Exactly the settings for its Type are populated.
type SourceConfig struct {
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	Type SourceType `json:"type" yaml:"type"`

	// Upload settings.
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
	Sheet     string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	KeyColumn string `json:"key_column,omitempty" yaml:"key_column,omitempty"`

	// Database settings.
	DSN   string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// External API settings.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// FieldMapping maps source-field names to candidate attribute names.
	// Mappings from later sources in a job overwrite earlier ones on
	// conflicting attribute names.
	FieldMapping map[string]string `json:"field_mapping" yaml:"field_mapping"`
}

// JobStatus is the lifecycle state of an enrichment job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job has finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CandidateResult is the per-candidate line item of a job. Source failures
// land here instead of failing the whole job.
type CandidateResult struct {
	CandidateID    string   `json:"candidate_id"`
	FieldsEnriched int      `json:"fields_enriched"`
	Errors         []string `json:"errors,omitempty"`
}

// EnrichmentJob tracks one asynchronous enrichment run. The candidate set
// and source list are immutable after creation; re-running enrichment
// creates a new job.
type EnrichmentJob struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	CandidateIDs []string          `json:"candidate_ids"`
	Sources      []SourceConfig    `json:"sources"`
	Status       JobStatus         `json:"status"`
	Results      []CandidateResult `json:"results,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}
