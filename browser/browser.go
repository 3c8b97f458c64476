// Package browser is the Rod-backed implementation of the page
// contracts. It launches (or connects to) Chrome with anti-detection
// flags, injects stealth JS into every new page, and binds the
// identity handed down by the executor: user-agent override per page,
// proxy per disposable browser context.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/drover/page"
)

// Config configures the browser Manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headful disables headless mode. Default: headless.
	Headful bool

	// NavTimeout bounds navigation and page load. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome connection and hands out pages. It
// implements page.Browser.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Call Start before requesting pages.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		m.lnch = l
		wsURL = u
		log.Info("browser: launched local chrome", "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return nil
}

// Close shuts down Chrome.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

// NewPage opens a fresh page with opts' identity applied. A proxy in
// opts puts the page into its own disposable browser context so the
// proxy never leaks to concurrent runs. The page is exclusively owned
// by the caller until Close.
func (m *Manager) NewPage(ctx context.Context, opts page.Options) (page.Page, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var contextID proto.BrowserBrowserContextID
	target := proto.TargetCreateTarget{URL: "about:blank"}

	if opts.ProxyServer != "" {
		res, err := proto.TargetCreateBrowserContext{
			ProxyServer:     opts.ProxyServer,
			ProxyBypassList: opts.ProxyBypass,
		}.Call(b)
		if err != nil {
			return nil, fmt.Errorf("browser: create context: %w", err)
		}
		contextID = res.BrowserContextID
		target.BrowserContextID = contextID
	}

	p, err := b.Page(target)
	if err != nil {
		m.disposeContext(b, contextID)
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
		m.cfg.Logger.Warn("browser: stealth injection failed", "error", err)
	}

	if opts.UserAgent != "" {
		ua := &proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}
		if err := p.SetUserAgent(ua); err != nil {
			p.Close()
			m.disposeContext(b, contextID)
			return nil, fmt.Errorf("browser: set user agent: %w", err)
		}
	}

	return &rodPage{
		page:      p,
		browser:   b,
		contextID: contextID,
		timeout:   m.cfg.NavTimeout,
		logger:    m.cfg.Logger,
	}, nil
}

func (m *Manager) disposeContext(b *rod.Browser, id proto.BrowserBrowserContextID) {
	if id == "" {
		return
	}
	err := proto.TargetDisposeBrowserContext{BrowserContextID: id}.Call(b)
	if err != nil {
		m.cfg.Logger.Warn("browser: dispose context failed", "error", err)
	}
}
