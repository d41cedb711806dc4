// Package pipeline drives one scrape run: fetch every URL in order, build
// a record per page, then write, normalize and archive the results.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/use-agent/auctionscrape/export"
	"github.com/use-agent/auctionscrape/history"
	"github.com/use-agent/auctionscrape/models"
	"github.com/use-agent/auctionscrape/vehicle"
)

// ErrAborted marks a run stopped by FailFast. The fetch error that caused
// the abort is wrapped alongside it.
var ErrAborted = errors.New("run aborted")

// Fetcher returns the rendered HTML of a listing page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options controls a Run.
type Options struct {
	// OutputCSV is the file written at the end of the run.
	OutputCSV string

	// FailFast aborts the run on the first fetch error. Otherwise the URL
	// gets a record built from whatever HTML the fetcher returned.
	FailFast bool

	// History, when non-nil, receives every record of the run.
	History *history.Archive

	// Now stamps archived records. Defaults to time.Now.
	Now func() time.Time
}

// LoadURLs reads one URL per line from path, skipping blank lines and
// lines starting with "#". A missing file yields just fallback.
func LoadURLs(path, fallback string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("no URL file, using default URL", "path", path, "url", fallback)
		return []string{fallback}, nil
	}
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to open URL file", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "failed to read URL file", err)
	}
	return urls, nil
}

// Run fetches urls sequentially and returns one record per URL processed.
//
// A fetch failure either aborts the run (FailFast) or is logged and the
// URL is parsed from whatever HTML the fetcher returned with the error. Writing the CSV is the only other fatal
// step: post-processing and archiving failures are logged and leave the
// raw CSV in place. When ctx is canceled the loop stops, the records
// gathered so far are still written, and ctx's error is returned.
func Run(ctx context.Context, f Fetcher, urls []string, opts Options) ([]models.VehicleRecord, error) {
	records := make([]models.VehicleRecord, 0, len(urls))

	var runErr error
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		start := time.Now()
		html, err := f.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			if opts.FailFast {
				slog.Error("fetch failed, aborting run", "url", url, "error", err)
				return records, fmt.Errorf("%w at %s: %w", ErrAborted, url, err)
			}
			slog.Warn("fetch failed, parsing whatever HTML was obtained",
				"url", url, "bytes", len(html), "error", err)
		}

		rec := vehicle.BuildRecord(html, url)
		records = append(records, rec)
		slog.Info("record built",
			"n", i+1,
			"of", len(urls),
			"url", url,
			"stockNo", rec.StockNo,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}

	if err := export.WriteCSV(opts.OutputCSV, records); err != nil {
		return records, err
	}
	if err := export.PostProcess(opts.OutputCSV); err != nil {
		slog.Warn("post-processing failed, raw CSV left in place", "path", opts.OutputCSV, "error", err)
	}
	slog.Info("csv written", "path", opts.OutputCSV, "records", len(records))

	if opts.History != nil && len(records) > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		// Archive even if ctx was canceled; the records are already final.
		fresh, total, err := archive(context.WithoutCancel(ctx), opts.History, records, now())
		if err != nil {
			slog.Warn("failed to archive records", "error", err)
		} else {
			slog.Info("records archived", "new", fresh, "total", total)
		}
	}

	return records, runErr
}

// archive saves records and reports how many URLs were never archived
// before, along with the archive's size afterwards.
func archive(ctx context.Context, arc *history.Archive, records []models.VehicleRecord, at time.Time) (fresh, total int, err error) {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		_, ok, err := arc.Get(ctx, r.URL)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			fresh++
		}
	}
	if err := arc.Save(ctx, records, at); err != nil {
		return 0, 0, err
	}
	total, err = arc.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return fresh, total, nil
}
