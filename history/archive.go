// Package history keeps every record ever scraped in a SQLite file, one
// row per listing URL, so successive runs accumulate instead of replacing
// each other.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/use-agent/auctionscrape/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Entry is an archived record with its bookkeeping timestamps.
type Entry struct {
	models.VehicleRecord
	FirstSeen time.Time
	ScrapedAt time.Time
}

// Archive is a SQLite-backed record store.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path. ":memory:" gives a
// private in-memory archive.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeHistory, "failed to open history database", err)
	}
	// A single connection keeps ":memory:" databases alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, models.NewScrapeError(models.ErrCodeHistory, "failed to apply history schema", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

const upsertVehicle = `
insert into vehicles (
    url, stock_no, make, model, year, auction_date, acv_cost, repair_cost, first_seen, scraped_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict(url) do update set
    stock_no = excluded.stock_no,
    make = excluded.make,
    model = excluded.model,
    year = excluded.year,
    auction_date = excluded.auction_date,
    acv_cost = excluded.acv_cost,
    repair_cost = excluded.repair_cost,
    scraped_at = excluded.scraped_at`

// Save upserts records in one transaction, keyed by URL. first_seen is
// kept from the earliest run; every other column reflects the latest one.
func (a *Archive) Save(ctx context.Context, records []models.VehicleRecord, at time.Time) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeHistory, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertVehicle)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeHistory, "failed to prepare upsert", err)
	}
	defer stmt.Close()

	ts := at.Unix()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.URL, r.StockNo, r.Make, r.Model, r.Year, r.AuctionDate, r.ACVCost, r.RepairCost, ts, ts)
		if err != nil {
			return models.NewScrapeError(models.ErrCodeHistory, "failed to save record "+r.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.NewScrapeError(models.ErrCodeHistory, "failed to commit records", err)
	}
	return nil
}

// Count returns the number of archived listings.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "select count(*) from vehicles").Scan(&n); err != nil {
		return 0, models.NewScrapeError(models.ErrCodeHistory, "failed to count records", err)
	}
	return n, nil
}

// Get returns the archived entry for url. ok is false when url was never
// archived.
func (a *Archive) Get(ctx context.Context, url string) (e Entry, ok bool, err error) {
	var firstSeen, scrapedAt int64
	row := a.db.QueryRowContext(ctx, `
select url, stock_no, make, model, year, auction_date, acv_cost, repair_cost, first_seen, scraped_at
from vehicles where url = ?`, url)
	err = row.Scan(
		&e.URL, &e.StockNo, &e.Make, &e.Model, &e.Year, &e.AuctionDate,
		&e.ACVCost, &e.RepairCost, &firstSeen, &scrapedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, models.NewScrapeError(models.ErrCodeHistory, "failed to load record", err)
	}
	e.FirstSeen = time.Unix(firstSeen, 0)
	e.ScrapedAt = time.Unix(scrapedAt, 0)
	return e, true, nil
}
