package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

var (
	importFilePath string
	importSheet    string
)

// bulkInserter is the fast path the postgres store offers via COPY.
type bulkInserter interface {
	BulkInsertCandidates(ctx context.Context, kind model.Kind, candidates []model.Candidate) (int64, error)
}

var importCmd = &cobra.Command{
	Use:   "import <kind>",
	Short: "Import candidates from an XLSX or CSV file",
	Long:  "Reads a header row and maps the tax_id, name, email, phone, business_tax_id, and notes columns. Other columns are ignored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		candidates, err := parseCandidateFile(importFilePath, importSheet, kind)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return eris.New("no importable rows found")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var inserted int64
		if bulk, ok := st.(bulkInserter); ok {
			inserted, err = bulk.BulkInsertCandidates(ctx, kind, candidates)
			if err != nil {
				return err
			}
		} else {
			for i := range candidates {
				if err := st.InsertCandidate(ctx, &candidates[i]); err != nil {
					return eris.Wrapf(err, "insert row %d (%s)", i+1, candidates[i].TaxID)
				}
				inserted++
			}
		}

		zap.L().Info("import complete",
			zap.String("kind", string(kind)),
			zap.Int64("inserted", inserted),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func parseCandidateFile(path, sheet string, kind model.Kind) ([]model.Candidate, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSXRows(path, sheet)
	default:
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.New("file needs a header row and at least one data row")
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["tax_id"]; !ok {
		return nil, eris.New("missing required tax_id column")
	}

	pick := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var candidates []model.Candidate
	for _, row := range rows[1:] {
		taxID := pick(row, "tax_id")
		if taxID == "" {
			continue
		}
		candidates = append(candidates, model.Candidate{
			Kind:          kind,
			TaxID:         taxID,
			BusinessTaxID: pick(row, "business_tax_id"),
			Name:          pick(row, "name"),
			Email:         pick(row, "email"),
			Phone:         pick(row, "phone"),
			Notes:         pick(row, "notes"),
		})
	}
	return candidates, nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open import file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "parse csv")
	}
	return rows, nil
}

func readXLSXRows(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if sheetName != "" {
		named, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("sheet %q not found", sheetName)
		}
		sheet = named
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to XLSX or CSV file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
