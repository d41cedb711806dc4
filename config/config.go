package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Run        RunConfig
	Browser    BrowserConfig
	Context    ContextConfig
	Navigation NavigationConfig
	Cache      CacheConfig
	History    HistoryConfig
	Log        LogConfig
}

// RunConfig controls inputs, outputs and failure policy of one run.
type RunConfig struct {
	// URLsFile lists target URLs, one per line.
	URLsFile string // default: "urls.txt"

	// DefaultURL is used when URLsFile does not exist.
	DefaultURL string // default: "https://ca.iaai.com/vehicle-details/2753101"

	// HomepageURL is visited once before the targets to pick up cookies.
	// Empty disables the warm-up.
	HomepageURL string // default: "https://ca.iaai.com/"

	// StateFile holds cookies and local storage between runs.
	StateFile string // default: "state.json"

	// OutputCSV is the result file, rewritten on every run.
	OutputCSV string // default: "auction_data.csv"

	// FailFast aborts the whole run when a URL still fails after every
	// navigation fallback. When false the URL gets a record built from an
	// empty page and the run continues.
	FailFast bool // default: false

	// FetchMode is "browser" (rendered with Chromium) or "http" (plain GET).
	FetchMode string // default: "browser"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// DefaultProxy is the proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// BlockedResourceTypes lists resource types to block, e.g. "Image".
	BlockedResourceTypes []string // default: none
}

// ContextConfig is the browser fingerprint presented to the site.
type ContextConfig struct {
	ViewportWidth  int    // default: 1366
	ViewportHeight int    // default: 768
	Locale         string // default: "en-US"
	TimezoneID     string // default: "America/Toronto"
	UserAgent      string
	Platform       string // default: "MacIntel"
}

// NavigationConfig holds the timings of the navigation retry policy.
type NavigationConfig struct {
	// Timeout bounds the first two navigation attempts.
	Timeout time.Duration // default: 45s

	// FinalTimeout bounds the last attempt.
	FinalTimeout time.Duration // default: 60s

	// FinalSettleDelay is slept after the last attempt.
	FinalSettleDelay time.Duration // default: 2.5s

	// SettleDelay is slept after navigation, before scrolling.
	SettleDelay time.Duration // default: 1.2s

	// ScrollDistance is the mouse-wheel delta in pixels.
	ScrollDistance float64 // default: 1200

	// PostScrollDelay is slept after scrolling, before reading the page.
	PostScrollDelay time.Duration // default: 800ms

	// WarmupDelay is slept after loading the homepage.
	WarmupDelay time.Duration // default: 1.5s

	// ConsentTimeout bounds the search for the cookie "Accept" button.
	ConsentTimeout time.Duration // default: 1.5s

	// RequestsPerSecond caps navigations per second. 0 means no limit.
	RequestsPerSecond float64 // default: 0

	// HTTPTimeout bounds a request in http fetch mode.
	HTTPTimeout time.Duration // default: 30s
}

// CacheConfig controls the in-run page cache.
type CacheConfig struct {
	// MaxEntries bounds the cache. 0 disables it.
	MaxEntries int // default: 256

	// MaxAge is how long a fetched page may be reused.
	MaxAge time.Duration // default: 30m
}

// HistoryConfig controls the optional SQLite archive.
type HistoryConfig struct {
	// DBPath is the SQLite file. Empty disables the archive.
	DBPath string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Run: RunConfig{
			URLsFile:    envOr("AUCTION_URLS_FILE", "urls.txt"),
			DefaultURL:  envOr("AUCTION_DEFAULT_URL", "https://ca.iaai.com/vehicle-details/2753101"),
			HomepageURL: envOr("AUCTION_HOMEPAGE", "https://ca.iaai.com/"),
			StateFile:   envOr("AUCTION_STATE_FILE", "state.json"),
			OutputCSV:   envOr("AUCTION_OUTPUT_CSV", "auction_data.csv"),
			FailFast:    envBoolOr("AUCTION_FAIL_FAST", false),
			FetchMode:   envOr("AUCTION_FETCH_MODE", "browser"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("AUCTION_HEADLESS", true),
			DefaultProxy:         os.Getenv("AUCTION_PROXY"),
			NoSandbox:            envBoolOr("AUCTION_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("AUCTION_BROWSER_BIN"),
			BlockedResourceTypes: envSliceOr("AUCTION_BLOCKED_RESOURCES", nil),
		},
		Context: ContextConfig{
			ViewportWidth:  envIntOr("AUCTION_VIEWPORT_WIDTH", 1366),
			ViewportHeight: envIntOr("AUCTION_VIEWPORT_HEIGHT", 768),
			Locale:         envOr("AUCTION_LOCALE", "en-US"),
			TimezoneID:     envOr("AUCTION_TIMEZONE", "America/Toronto"),
			UserAgent:      envOr("AUCTION_USER_AGENT", defaultUserAgent),
			Platform:       envOr("AUCTION_PLATFORM", "MacIntel"),
		},
		Navigation: NavigationConfig{
			Timeout:           envDurationOr("AUCTION_NAV_TIMEOUT", 45*time.Second),
			FinalTimeout:      envDurationOr("AUCTION_FINAL_NAV_TIMEOUT", 60*time.Second),
			FinalSettleDelay:  envDurationOr("AUCTION_FINAL_SETTLE_DELAY", 2500*time.Millisecond),
			SettleDelay:       envDurationOr("AUCTION_SETTLE_DELAY", 1200*time.Millisecond),
			ScrollDistance:    envFloatOr("AUCTION_SCROLL_DISTANCE", 1200),
			PostScrollDelay:   envDurationOr("AUCTION_POST_SCROLL_DELAY", 800*time.Millisecond),
			WarmupDelay:       envDurationOr("AUCTION_WARMUP_DELAY", 1500*time.Millisecond),
			ConsentTimeout:    envDurationOr("AUCTION_CONSENT_TIMEOUT", 1500*time.Millisecond),
			RequestsPerSecond: envFloatOr("AUCTION_NAV_RPS", 0),
			HTTPTimeout:       envDurationOr("AUCTION_HTTP_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("AUCTION_PAGE_CACHE_ENTRIES", 256),
			MaxAge:     envDurationOr("AUCTION_PAGE_CACHE_TTL", 30*time.Minute),
		},
		History: HistoryConfig{
			DBPath: os.Getenv("AUCTION_HISTORY_DB"),
		},
		Log: LogConfig{
			Level:  envOr("AUCTION_LOG_LEVEL", "info"),
			Format: envOr("AUCTION_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
