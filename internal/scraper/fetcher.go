// Package scraper fetches pricing pages and extracts structured plan data.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricescope/backend/internal/apperror"
	"github.com/pricescope/backend/internal/scraper/browser"
)

// PageFetcher loads a URL in a browser and returns the rendered DOM. The
// only component in the pipeline that performs network I/O.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

type rodFetcher struct {
	pool *browser.Pool
}

// NewFetcher creates a PageFetcher backed by the given browser pool
func NewFetcher(pool *browser.Pool) PageFetcher {
	return &rodFetcher{pool: pool}
}

// Fetch navigates to the URL, waits for basic page readiness, and snapshots
// the rendered HTML into a queryable document. The page is returned to the
// pool on every path, so a failed navigation never leaks a browser page.
func (f *rodFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, apperror.Fetch("acquire page", err)
	}
	defer f.pool.Release(page)

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return nil, apperror.Fetch("navigate to "+url, err)
	}

	if err := page.WaitLoad(); err != nil {
		return nil, apperror.Fetch("wait for load", err)
	}

	// Give SPAs a moment to settle before snapshotting the DOM
	wait := page.WaitRequestIdle(time.Second, nil, nil, nil)
	wait()

	html, err := page.HTML()
	if err != nil {
		return nil, apperror.Fetch("read page HTML", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperror.Fetch("parse page HTML", err)
	}

	return doc, nil
}
