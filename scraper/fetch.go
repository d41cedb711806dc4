package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/auctionscrape/config"
	"github.com/use-agent/auctionscrape/models"
)

// WaitMode selects the page lifecycle event a navigation waits for.
type WaitMode int

const (
	// WaitDOMContentLoaded returns once the HTML is parsed.
	WaitDOMContentLoaded WaitMode = iota
	// WaitLoad returns once the load event has fired.
	WaitLoad
)

func (w WaitMode) String() string {
	switch w {
	case WaitDOMContentLoaded:
		return "domcontentloaded"
	case WaitLoad:
		return "load"
	default:
		return "unknown"
	}
}

// Page is the subset of a browser tab the fetch loop drives.
type Page interface {
	// Navigate loads url and waits for the given event, bounded by timeout.
	Navigate(ctx context.Context, url string, wait WaitMode, timeout time.Duration) error

	// Scroll moves the mouse wheel by dy pixels.
	Scroll(ctx context.Context, dy float64) error

	// ClickButton clicks the first button whose text matches the JS regex
	// pattern, waiting at most timeout for it to appear.
	ClickButton(ctx context.Context, pattern string, timeout time.Duration) error

	// HTML returns the current rendered document.
	HTML(ctx context.Context) (string, error)
}

// sleeper blocks for d or until ctx is done.
type sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// navigate runs the three-step fallback: DOMContentLoaded, then load, then
// load with the longer timeout followed by a fixed settle delay. Only the
// last attempt's error is returned.
func navigate(ctx context.Context, p Page, url string, cfg config.NavigationConfig, sleep sleeper) error {
	err := p.Navigate(ctx, url, WaitDOMContentLoaded, cfg.Timeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return categorizeError(ctx.Err(), "run canceled")
	}
	slog.Debug("navigation attempt failed, retrying",
		"url", url, "wait", WaitDOMContentLoaded, "error", err)

	err = p.Navigate(ctx, url, WaitLoad, cfg.Timeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return categorizeError(ctx.Err(), "run canceled")
	}
	slog.Debug("navigation attempt failed, retrying with longer timeout",
		"url", url, "wait", WaitLoad, "error", err)

	if err := p.Navigate(ctx, url, WaitLoad, cfg.FinalTimeout); err != nil {
		return categorizeError(err, "navigation failed after all fallbacks")
	}
	return sleep(ctx, cfg.FinalSettleDelay)
}

// loadPage navigates to url, lets client-side rendering settle, nudges
// lazy content with a scroll and returns the rendered HTML.
//
// When every navigation attempt fails the error is returned together with
// whatever HTML the tab holds, so callers can still parse a partial page.
func loadPage(ctx context.Context, p Page, url string, cfg config.NavigationConfig, sleep sleeper) (string, error) {
	if err := navigate(ctx, p, url, cfg, sleep); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		html, htmlErr := p.HTML(ctx)
		if htmlErr != nil {
			slog.Debug("no HTML after failed navigation", "url", url, "error", htmlErr)
			return "", err
		}
		return html, err
	}
	if err := sleep(ctx, cfg.SettleDelay); err != nil {
		return "", categorizeError(err, "run canceled")
	}
	if err := p.Scroll(ctx, cfg.ScrollDistance); err != nil {
		slog.Debug("scroll failed, continuing", "url", url, "error", err)
	}
	if err := sleep(ctx, cfg.PostScrollDelay); err != nil {
		return "", categorizeError(err, "run canceled")
	}

	html, err := p.HTML(ctx)
	if err != nil {
		return "", categorizeError(err, "failed to read page HTML")
	}
	return html, nil
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
