package enrich

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

// datasetSource serves lookups from an uploaded spreadsheet (XLSX or CSV),
// fetched from a local path, an http(s) URL, or an FTP URL. Rows are keyed
// by the configured tax-id column, with an accent-folded name fallback for
// datasets without clean identifiers.
type datasetSource struct {
	name      string
	location  string
	sheet     string
	keyColumn string
	mapping   map[string]string
	deps      Deps

	byTaxID map[string]map[string]any
	byName  map[string]map[string]any
}

func newDatasetSource(ctx context.Context, cfg model.SourceConfig, deps Deps) (Source, error) {
	if cfg.Location == "" {
		return nil, errs.Validationf("upload source %q: location required", cfg.Name)
	}
	if len(cfg.FieldMapping) == 0 {
		return nil, errs.Validationf("upload source %q: field mapping required", cfg.Name)
	}
	keyColumn := cfg.KeyColumn
	if keyColumn == "" {
		keyColumn = "tax_id"
	}
	s := &datasetSource{
		name:      cfg.Name,
		location:  cfg.Location,
		sheet:     cfg.Sheet,
		keyColumn: keyColumn,
		mapping:   cfg.FieldMapping,
		deps:      deps,
	}
	if err := s.load(ctx); err != nil {
		return nil, &errs.UpstreamSourceError{Source: s.name, Err: err}
	}
	return s, nil
}

func (s *datasetSource) Name() string { return s.name }

func (s *datasetSource) Lookup(ctx context.Context, c *model.Candidate) (map[string]any, error) {
	if raw, ok := s.byTaxID[digits(c.TaxID)]; ok {
		return mapFields(raw, s.mapping), nil
	}
	if raw, ok := s.byName[foldKey(c.Name)]; ok {
		return mapFields(raw, s.mapping), nil
	}
	return nil, nil
}

// load fetches and indexes the dataset at construction time; concurrent
// lookups share the indexes read-only afterwards.
func (s *datasetSource) load(ctx context.Context) error {
	data, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	var rows [][]string
	if strings.HasSuffix(strings.ToLower(s.location), ".csv") {
		rows, err = parseCSV(data)
	} else {
		rows, err = parseXLSX(data, s.sheet)
	}
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return eris.Errorf("dataset %s: no data rows", s.location)
	}

	header := rows[0]
	keyIdx := -1
	nameIdx := -1
	for i, h := range header {
		switch {
		case strings.EqualFold(strings.TrimSpace(h), s.keyColumn):
			keyIdx = i
		case foldKey(h) == "name" || foldKey(h) == "razao social":
			nameIdx = i
		}
	}
	if keyIdx == -1 && nameIdx == -1 {
		return eris.Errorf("dataset %s: neither key column %q nor a name column found", s.location, s.keyColumn)
	}

	s.byTaxID = map[string]map[string]any{}
	s.byName = map[string]map[string]any{}
	for _, row := range rows[1:] {
		raw := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(row) {
				raw[strings.TrimSpace(h)] = row[i]
			}
		}
		if keyIdx >= 0 && keyIdx < len(row) {
			if key := digits(row[keyIdx]); key != "" {
				s.byTaxID[key] = raw
			}
		}
		if nameIdx >= 0 && nameIdx < len(row) {
			if key := foldKey(row[nameIdx]); key != "" {
				s.byName[key] = raw
			}
		}
	}

	zap.L().Info("enrich: dataset loaded",
		zap.String("source", s.name),
		zap.String("location", s.location),
		zap.Int("rows", len(rows)-1),
	)
	return nil
}

// fetch retrieves the raw dataset bytes by location scheme.
func (s *datasetSource) fetch(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(s.location)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return s.fetchHTTP(ctx)
		case "ftp":
			return fetchFTP(u)
		}
	}
	data, err := os.ReadFile(s.location)
	if err != nil {
		return nil, eris.Wrapf(err, "read dataset %s", s.location)
	}
	return data, nil
}

func (s *datasetSource) fetchHTTP(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build dataset request")
	}
	resp, err := s.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch dataset %s", s.location)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("fetch dataset %s: status %d", s.location, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// fetchFTP downloads the dataset from an FTP server with anonymous or
// URL-embedded credentials.
func fetchFTP(u *url.URL) ([]byte, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp dial %s", host)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, eris.Wrapf(err, "ftp login %s", host)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp retr %s", u.Path)
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "parse csv")
	}
	return rows, nil
}

func parseXLSX(data []byte, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	if sheetName != "" {
		named, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx sheet %q not found", sheetName)
		}
		sheet = named
	}

	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// digits strips everything but 0-9, normalizing CPF/CNPJ notations.
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldKey lowercases and strips diacritics so "São João" and "sao joao"
// compare equal.
func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
