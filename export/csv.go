// Package export writes scraped records to CSV and normalizes the result.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/use-agent/auctionscrape/models"
)

// WriteCSV writes the header and one row per record to path, replacing any
// existing file.
func WriteCSV(path string, records []models.VehicleRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to create output file", err)
	}
	if err := writeRecords(f, records); err != nil {
		f.Close()
		return models.NewScrapeError(models.ErrCodeExport, "failed to write output file", err)
	}
	if err := f.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to close output file", err)
	}
	return nil
}

func writeRecords(w io.Writer, records []models.VehicleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a CSV written by WriteCSV, mapping cells by header name so
// column order in the file does not matter. Short rows are padded with
// empty cells. Every column of models.Columns must be present.
func ReadCSV(path string) ([]models.VehicleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range models.Columns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var records []models.VehicleRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		m := make(map[string]string, len(models.Columns))
		for _, col := range models.Columns {
			if i := idx[col]; i < len(row) {
				m[col] = row[i]
			}
		}
		records = append(records, models.RecordFromMap(m))
	}
	return records, nil
}

// Dedupe drops every record whose Stock No was already seen, keeping the
// first occurrence. Empty stock numbers are compared like any other value.
func Dedupe(records []models.VehicleRecord) []models.VehicleRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.VehicleRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.StockNo]; dup {
			continue
		}
		seen[r.StockNo] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Sort orders records by Auction Date, then Stock No, comparing both as
// plain strings. Equal keys keep their input order.
func Sort(records []models.VehicleRecord) {
	slices.SortStableFunc(records, func(a, b models.VehicleRecord) int {
		if c := strings.Compare(a.AuctionDate, b.AuctionDate); c != 0 {
			return c
		}
		return strings.Compare(a.StockNo, b.StockNo)
	})
}

// PostProcess re-reads the CSV at path, enforces column order, removes
// duplicate stock numbers, sorts and rewrites the file in place. The file
// is replaced atomically, so on failure it is left exactly as it was.
func PostProcess(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to read output for post-processing", err)
	}
	records, err := ReadCSV(path)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to read output for post-processing", err)
	}

	records = Dedupe(records)
	Sort(records)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeExport, "failed to set output file mode", err)
	}
	if err := writeRecords(tmp, records); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeExport, "failed to write post-processed output", err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to write post-processed output", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return models.NewScrapeError(models.ErrCodeExport, "failed to replace output file", err)
	}
	return nil
}
