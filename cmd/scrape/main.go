// Command scrape fetches one pricing page and prints the extracted payload,
// useful for checking how the extractor handles a site before tracking it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pricescope/backend/internal/model"
	"github.com/pricescope/backend/internal/scraper"
	"github.com/pricescope/backend/internal/scraper/browser"
)

func main() {
	jobType := flag.String("type", "PRICING", "Extraction type: PRICING, FEATURES or INTEGRATIONS")
	timeout := flag.Duration("timeout", 2*time.Minute, "Fetch timeout")
	headless := flag.Bool("headless", true, "Run the browser headless")
	flag.Parse()

	url := flag.Arg(0)
	if url == "" {
		fmt.Fprintln(os.Stderr, "usage: scrape [flags] <url>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := browser.NewPool(browser.Config{
		MaxPages:    1,
		PageTimeout: *timeout,
		Headless:    *headless,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error launching browser: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = pool.Close() }()

	fetcher := scraper.NewFetcher(pool)

	start := time.Now()
	doc, err := fetcher.Fetch(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching %s: %v\n", url, err)
		os.Exit(1)
	}

	result := scraper.NewExtractor().Extract(doc, model.JobType(*jobType))
	payload, err := result.Payload()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(payload))
	fmt.Fprintf(os.Stderr, "Fetched and extracted in %.1fs\n", time.Since(start).Seconds())
}
