// Package browser manages headless browser pages for scraping JS-rendered
// pricing pages.
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
)

// Pool hands out browser pages and caps how many are in flight. The pool
// size is the hard limit on concurrent pricing-page fetches.
type Pool struct {
	browser  *rod.Browser
	pagePool chan *rod.Page
	maxPages int
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// Config holds configuration for the browser pool
type Config struct {
	MaxPages    int           // Maximum concurrent pages (default: 3)
	PageTimeout time.Duration // Timeout for page operations (default: 60s)
	Headless    bool          // Run in headless mode (default: true)
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		MaxPages:    3,
		PageTimeout: 60 * time.Second,
		Headless:    true,
	}
}

// NewPool launches a browser and pre-warms the page pool
func NewPool(cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	pool := &Pool{
		browser:  browser,
		pagePool: make(chan *rod.Page, cfg.MaxPages),
		maxPages: cfg.MaxPages,
		logger:   logger,
	}

	for i := 0; i < cfg.MaxPages; i++ {
		page, err := pool.createPage(cfg.PageTimeout)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating page %d: %w", i, err)
		}
		pool.pagePool <- page
	}

	logger.Info("Browser pool initialized",
		slog.Int("max_pages", cfg.MaxPages),
		slog.Bool("headless", cfg.Headless),
	)

	return pool, nil
}

// createPage creates a new browser page with default settings
func (p *Pool) createPage(timeout time.Duration) (*rod.Page, error) {
	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	page = page.Timeout(timeout)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); err != nil {
		return nil, err
	}

	// Basic anti-detection; many SaaS pricing pages gate on webdriver checks
	_, err = page.Eval(`() => {
		Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined
		});
		Object.defineProperty(navigator, 'plugins', {
			get: () => [1, 2, 3, 4, 5]
		});
		Object.defineProperty(navigator, 'languages', {
			get: () => ['en-US', 'en']
		});
	}`)
	if err != nil {
		p.logger.Warn("Failed to apply stealth mode", slog.String("error", err.Error()))
	}

	return page, nil
}

// Acquire gets a page from the pool (blocks if none available)
func (p *Pool) Acquire(ctx context.Context) (*rod.Page, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.mu.Unlock()

	select {
	case page := <-p.pagePool:
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a page to the pool
func (p *Pool) Release(page *rod.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = page.Close()
		return
	}

	// Clear page state before returning
	_ = page.Navigate("about:blank")
	_ = page.SetCookies(nil)

	select {
	case p.pagePool <- page:
	default:
		// Pool is full, close the page
		_ = page.Close()
	}
}

// Close shuts down the browser pool
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.pagePool)
	for page := range p.pagePool {
		_ = page.Close()
	}

	if err := p.browser.Close(); err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}

	p.logger.Info("Browser pool closed")
	return nil
}
