package scraper

import (
	"context"
	"log/slog"

	"github.com/use-agent/auctionscrape/config"
)

// consentPattern matches the cookie banner's accept button by its text.
const consentPattern = `/accept/i`

// warmUp loads the homepage, waits for it to settle and tries to accept
// the cookie banner. Nothing here is allowed to fail the run.
func warmUp(ctx context.Context, p Page, homepage string, cfg config.NavigationConfig, sleep sleeper) {
	if homepage == "" {
		return
	}
	if err := p.Navigate(ctx, homepage, WaitDOMContentLoaded, cfg.Timeout); err != nil {
		slog.Warn("warm-up navigation failed, continuing", "url", homepage, "error", err)
		return
	}
	if err := sleep(ctx, cfg.WarmupDelay); err != nil {
		return
	}
	if err := p.ClickButton(ctx, consentPattern, cfg.ConsentTimeout); err != nil {
		slog.Debug("no consent button clicked", "error", err)
		return
	}
	slog.Info("cookie consent accepted", "url", homepage)
}
