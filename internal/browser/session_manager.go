// Package browser renders landing pages in Chrome for harvests whose DOI
// providers only emit JSON-LD from client-side scripts.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"obiscatalog/internal/config"
	"obiscatalog/internal/logging"
)

// Config describes how to reach Chrome.
type Config struct {
	// DebuggerURL connects to a running Chrome instead of launching one.
	DebuggerURL string
	// Launch is the Chrome binary followed by extra flags.
	Launch              []string
	Headless            bool
	NavigationTimeoutMs int
	UserAgent           string
}

// DefaultConfig returns headless defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NavigationTimeoutMs: 30000,
	}
}

// ConfigFrom maps the site configuration onto a browser Config.
func ConfigFrom(bc config.BrowserConfig, userAgent string) Config {
	return Config{
		DebuggerURL:         bc.DebuggerURL,
		Launch:              bc.Launch,
		Headless:            bc.Headless,
		NavigationTimeoutMs: bc.NavigationTimeoutMs,
		UserAgent:           userAgent,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SessionManager owns one Chrome connection shared by every page fetch.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
}

// NewSessionManager creates a session manager. Chrome is started lazily.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Browser("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected to chrome at %s", controlURL)
	return nil
}

func (m *SessionManager) resolveControlURL() (string, error) {
	if m.cfg.DebuggerURL != "" {
		return m.cfg.DebuggerURL, nil
	}

	if len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err == nil {
			return url, nil
		}
		// retry without the extra flags
		alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.Headless).Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		return alt, nil
	}

	url, err := launcher.New().Headless(m.cfg.Headless).Launch()
	if err != nil {
		return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
	}
	return url, nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}

// Open navigates a fresh incognito page to url and waits for the load event.
// The caller closes the returned page and context browser with the func.
func (m *SessionManager) Open(ctx context.Context, url string) (*rod.Page, func(), error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, nil, errors.New("browser not connected")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("incognito context: %w", err)
	}
	closeAll := func() { _ = incognito.Close() }

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	if m.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}); err != nil {
			logging.BrowserDebug("failed to set user agent: %v", err)
		}
	}

	nav := page.Context(ctx).Timeout(m.cfg.NavigationTimeout())
	if err := nav.Navigate(url); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("wait for %s: %w", url, err)
	}
	return page.Context(ctx), closeAll, nil
}

// FetchHTML returns the rendered HTML of url. It satisfies harvest.Fetcher.
func (m *SessionManager) FetchHTML(ctx context.Context, url string) (string, error) {
	page, done, err := m.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer done()

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html of %s: %w", url, err)
	}
	logging.BrowserDebug("rendered %s (%d bytes)", url, len(html))
	return html, nil
}
