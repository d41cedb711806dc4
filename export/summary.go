package export

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/use-agent/auctionscrape/models"
)

// WriteSummary renders records as a table on w, in Columns order, with a
// footer counting the rows that have no stock number.
func WriteSummary(w io.Writer, records []models.VehicleRecord) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)

	header := make(table.Row, len(models.Columns))
	for i, col := range models.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	missing := 0
	for _, r := range records {
		if r.StockNo == "" {
			missing++
		}
		row := make(table.Row, len(models.Columns))
		for i, v := range r.Row() {
			row[i] = v
		}
		t.AppendRow(row)
	}

	t.AppendFooter(table.Row{"Records", len(records), "", "", "", "No stock #", missing})
	t.Render()
}
