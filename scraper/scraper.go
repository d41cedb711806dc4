package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/stealth"
	"github.com/use-agent/auctionscrape/config"
	"github.com/use-agent/auctionscrape/models"
	"golang.org/x/time/rate"
)

// Session owns one headless browser and the single tab every URL of a run
// is loaded in. It is not safe for concurrent use.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	tab      Page
	router   *rod.HijackRouter
	nav      config.NavigationConfig
	limiter  *rate.Limiter
	state    *State
	sleep    sleeper
}

// NewSession launches the browser, restores state (which may be nil) and
// prepares the tab. Close must be called on every path once this returns.
func NewSession(cfg *config.Config, state *State) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		NoSandbox(cfg.Browser.NoSandbox)

	if cfg.Browser.BrowserBin != "" {
		l = l.Bin(cfg.Browser.BrowserBin)
	}
	if cfg.Browser.DefaultProxy != "" {
		l = l.Proxy(cfg.Browser.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), cfg.Context.Locale)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	s := &Session{
		launcher: l,
		browser:  browser,
		nav:      cfg.Navigation,
		limiter:  newLimiter(cfg.Navigation.RequestsPerSecond),
		state:    state,
		sleep:    sleepCtx,
	}
	if err := s.setup(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup(cfg *config.Config) error {
	if params := s.state.cookieParams(); len(params) > 0 {
		if err := s.browser.SetCookies(params); err != nil {
			slog.Warn("failed to restore cookies, continuing without them", "error", err)
		} else {
			slog.Info("session cookies restored", "count", len(params))
		}
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}
	s.page = page
	s.tab = &rodPage{page: page}

	if err := configurePage(page, cfg.Context, s.state); err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to configure page", err)
	}
	s.router = setupHijack(page, cfg.Browser.BlockedResourceTypes)
	return nil
}

// newLimiter returns a limiter allowing rps navigations per second, or an
// unlimited one when rps <= 0.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Fetch loads url with the navigation fallbacks and returns its rendered
// HTML.
func (s *Session) Fetch(ctx context.Context, url string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", categorizeError(err, "rate limiter wait aborted")
	}
	return loadPage(ctx, s.tab, url, s.nav, s.sleep)
}

// WarmUp visits the homepage once to pick up cookies and dismiss the
// cookie banner. Failures are logged and otherwise ignored.
func (s *Session) WarmUp(ctx context.Context, homepage string) {
	warmUp(ctx, s.tab, homepage, s.nav, s.sleep)
}

// PersistState snapshots cookies and the current origin's local storage,
// merges them into the state loaded at start and writes it to path.
func (s *Session) PersistState(path string) error {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to read browser cookies", err)
	}

	next := &State{Cookies: cookiesFromBrowser(cookies)}
	if s.state != nil {
		next.Origins = append(next.Origins, s.state.Origins...)
	}
	if res, err := s.page.Eval(localStorageJS); err != nil {
		slog.Debug("failed to read local storage", "error", err)
	} else if o := originFromEval(res.Value); o.Origin != "" && o.Origin != "null" {
		next.setOrigin(o)
	}

	if err := next.Save(path); err != nil {
		return err
	}
	s.state = next
	slog.Info("session state saved", "path", path, "cookies", len(next.Cookies), "origins", len(next.Origins))
	return nil
}

// Close stops the request router and kills the browser process.
// Call this on every exit path to prevent zombie Chrome processes.
func (s *Session) Close() {
	if s.router != nil {
		_ = s.router.Stop()
	}
	if s.page != nil {
		_ = s.page.Close()
	}
	if err := s.browser.Close(); err != nil {
		slog.Warn("failed to close browser", "error", err)
	}
	s.launcher.Cleanup()
	slog.Info("browser closed")
}
