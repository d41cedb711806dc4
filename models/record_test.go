package models

import "testing"

func TestRowFollowsColumns(t *testing.T) {
	r := VehicleRecord{
		StockNo:     "2753101",
		Make:        "HONDA",
		Model:       "CIVIC",
		Year:        "2021",
		AuctionDate: "2024-01-02",
		URL:         "https://ca.iaai.com/vehicle-details/2753101",
		ACVCost:     "$12,345.67",
		RepairCost:  "$1,000",
	}

	row := r.Row()
	if len(row) != len(Columns) {
		t.Fatalf("row has %d cells, want %d", len(row), len(Columns))
	}
	for i, col := range Columns {
		if row[i] != r.Get(col) {
			t.Errorf("column %q: row has %q, Get returns %q", col, row[i], r.Get(col))
		}
	}
}

func TestRecordFromMapMissingColumns(t *testing.T) {
	r := RecordFromMap(map[string]string{ColURL: "u", ColMake: "FORD"})
	if r.URL != "u" || r.Make != "FORD" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.StockNo != "" || r.RepairCost != "" {
		t.Fatalf("missing columns should be empty: %+v", r)
	}
	if got := r.Get("Mileage"); got != "" {
		t.Fatalf("unknown column should be empty, got %q", got)
	}
}

func TestHasCode(t *testing.T) {
	base := NewScrapeError(ErrCodeNavigation, "goto failed", nil)
	wrapped := NewScrapeError(ErrCodeExport, "post-process", base)

	if !HasCode(base, ErrCodeNavigation) {
		t.Error("expected navigation code on base error")
	}
	if !HasCode(wrapped, ErrCodeExport) {
		t.Error("expected export code on outer error")
	}
	if HasCode(nil, ErrCodeNavigation) {
		t.Error("nil error should carry no code")
	}
}
