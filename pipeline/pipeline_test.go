package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/auctionscrape/export"
	"github.com/use-agent/auctionscrape/history"
	"github.com/use-agent/auctionscrape/models"
)

// fakeFetcher serves canned pages by URL. URLs listed in errs fail, still
// returning any page registered for them.
type fakeFetcher struct {
	pages   map[string]string
	errs    map[string]error
	fetched []string
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	if f.onFetch != nil {
		f.onFetch(url)
	}
	if err, ok := f.errs[url]; ok {
		return f.pages[url], err
	}
	return f.pages[url], nil
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

const (
	dtddURL   = "https://ca.iaai.com/vehicle-details/31234567"
	inlineURL = "https://ca.iaai.com/vehicle-details/2753150"
)

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	urlsFile := filepath.Join(dir, "urls.txt")
	content := "# listings\n" + dtddURL + "\n\n  " + inlineURL + "  \n"
	if err := os.WriteFile(urlsFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls, err := LoadURLs(urlsFile, "https://unused")
	if err != nil {
		t.Fatal(err)
	}

	f := &fakeFetcher{pages: map[string]string{
		dtddURL:   fixture(t, "dtdd.html"),
		inlineURL: fixture(t, "inline.html"),
	}}
	out := filepath.Join(dir, "auction_data.csv")

	if _, err := Run(context.Background(), f, urls, Options{OutputCSV: out}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "Stock No,Make,Model,Year,Auction Date,URL,ACV Cost,Repair Cost\n" +
		"31234567,HONDA,CIVIC LX,2019,2024-05-01," + dtddURL + ",\"$12,345.67\",$900.00\n" +
		"2753199,TOYOTA,COROLLA LE,2017,2024-06-15," + inlineURL + ",\"$8,500\",3200\n"
	if diff := cmp.Diff(want, string(raw)); diff != "" {
		t.Errorf("csv (-want +got):\n%s", diff)
	}

	got, err := export.ReadCSV(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("data rows: got %d, want 2", len(got))
	}
}

func TestRun_FetchFailureKeepsRecord(t *testing.T) {
	failing := "https://ca.iaai.com/vehicle-details/2753101"
	f := &fakeFetcher{
		pages: map[string]string{dtddURL: fixture(t, "dtdd.html")},
		errs:  map[string]error{failing: models.NewScrapeError(models.ErrCodeNavigation, "boom", nil)},
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	records, err := Run(context.Background(), f, []string{failing, dtddURL}, Options{OutputCSV: out})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want one per URL", len(records))
	}
	want := models.VehicleRecord{StockNo: "2753101", URL: failing}
	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Errorf("failed URL record (-want +got):\n%s", diff)
	}
}

func TestRun_FetchFailureParsesPartialHTML(t *testing.T) {
	failing := "https://ca.iaai.com/vehicle-details/2753101"
	f := &fakeFetcher{
		pages: map[string]string{failing: `<dl><dt>Make</dt><dd>HONDA</dd><dt>Stock No</dt><dd>2753199</dd></dl>`},
		errs:  map[string]error{failing: models.NewScrapeError(models.ErrCodeNavigation, "navigation failed after all fallbacks", nil)},
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	records, err := Run(context.Background(), f, []string{failing}, Options{OutputCSV: out})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []models.VehicleRecord{{StockNo: "2753199", Make: "HONDA", URL: failing}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
}

func TestRun_FailFast(t *testing.T) {
	boom := errors.New("navigation failed after all fallbacks")
	f := &fakeFetcher{
		pages: map[string]string{dtddURL: fixture(t, "dtdd.html")},
		errs:  map[string]error{inlineURL: boom},
	}
	out := filepath.Join(t.TempDir(), "out.csv")

	_, err := Run(context.Background(), f, []string{dtddURL, inlineURL, dtddURL}, Options{OutputCSV: out, FailFast: true})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}
	if len(f.fetched) != 2 {
		t.Errorf("fetches after abort: got %d, want 2", len(f.fetched))
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("no CSV expected after fail-fast abort, stat err = %v", statErr)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{pages: map[string]string{dtddURL: fixture(t, "dtdd.html")}}
	f.onFetch = func(string) { cancel() }
	out := filepath.Join(t.TempDir(), "out.csv")

	records, err := Run(ctx, f, []string{dtddURL, inlineURL}, Options{OutputCSV: out})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records: got %d, want 1", len(records))
	}
	got, readErr := export.ReadCSV(out)
	if readErr != nil {
		t.Fatalf("partial CSV should be written: %v", readErr)
	}
	if len(got) != 1 {
		t.Errorf("csv rows: got %d, want 1", len(got))
	}
}

func TestRun_Archive(t *testing.T) {
	dir := t.TempDir()
	arc, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer arc.Close()

	at := time.Unix(1_700_000_000, 0)
	f := &fakeFetcher{pages: map[string]string{
		dtddURL:   fixture(t, "dtdd.html"),
		inlineURL: fixture(t, "inline.html"),
	}}
	opts := Options{
		OutputCSV: filepath.Join(dir, "out.csv"),
		History:   arc,
		Now:       func() time.Time { return at },
	}
	if _, err := Run(context.Background(), f, []string{dtddURL, inlineURL}, opts); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	n, err := arc.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("archived: got %d, want 2", n)
	}
	e, ok, err := arc.Get(ctx, inlineURL)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if e.StockNo != "2753199" || !e.ScrapedAt.Equal(at) {
		t.Errorf("archived entry = %+v", e)
	}
}

func TestArchive_CountsNewListings(t *testing.T) {
	arc, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer arc.Close()
	ctx := context.Background()

	first := []models.VehicleRecord{{StockNo: "31234567", URL: dtddURL}}
	fresh, total, err := archive(ctx, arc, first, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if fresh != 1 || total != 1 {
		t.Errorf("first run: fresh=%d total=%d, want 1 1", fresh, total)
	}

	second := []models.VehicleRecord{
		{StockNo: "31234567", URL: dtddURL},
		{StockNo: "2753199", URL: inlineURL},
		{StockNo: "2753199", URL: inlineURL},
	}
	fresh, total, err = archive(ctx, arc, second, time.Unix(1_700_086_400, 0))
	if err != nil {
		t.Fatal(err)
	}
	if fresh != 1 || total != 2 {
		t.Errorf("second run: fresh=%d total=%d, want 1 2", fresh, total)
	}
}

func TestLoadURLs(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file uses fallback", func(t *testing.T) {
		got, err := LoadURLs(filepath.Join(dir, "nope.txt"), "https://default")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"https://default"}, got); diff != "" {
			t.Errorf("urls (-want +got):\n%s", diff)
		}
	})

	t.Run("comments and blanks skipped", func(t *testing.T) {
		path := filepath.Join(dir, "urls.txt")
		content := "# header\n\nhttps://a\n   \n  # indented comment\n\thttps://b\t\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadURLs(path, "https://default")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"https://a", "https://b"}, got); diff != "" {
			t.Errorf("urls (-want +got):\n%s", diff)
		}
	})

	t.Run("empty file yields no URLs", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := LoadURLs(path, "https://default")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("urls = %v, want none", got)
		}
	})
}
