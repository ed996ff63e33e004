// Command nitpicker is the crawler's single entry point: it wires the
// cobra command tree to a concrete Scraper and Archive and runs one crawl
// session per invocation of the crawl subcommand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/d-zero-dev/nitpicker-go/internal/archive"
	"github.com/d-zero-dev/nitpicker-go/internal/cli"
	"github.com/d-zero-dev/nitpicker-go/internal/config"
	"github.com/d-zero-dev/nitpicker-go/internal/events"
	"github.com/d-zero-dev/nitpicker-go/internal/logging"
	"github.com/d-zero-dev/nitpicker-go/internal/orchestrator"
	"github.com/d-zero-dev/nitpicker-go/internal/scraper"
)

func main() {
	cli.Runner = runCrawl
	cli.Execute()
}

func runCrawl(ctx context.Context, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(false)

	arc, err := archive.NewTarArchive(cfg.OutputPath())
	if err != nil {
		return fmt.Errorf("nitpicker: open archive: %w", err)
	}

	crawler := orchestrator.New(cfg, scraper.NewDefaultScraper(nil), arc, logger)

	crawler.Events().OnURL(func(url string) {
		fmt.Printf("crawling %s\n", url)
	})
	crawler.Events().OnError(func(payload events.ErrorPayload) {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", payload.URL, payload.Err)
	})
	crawler.Events().OnWriteFile(func(path string) {
		logger.Infof("wrote %s", path)
	})
	crawler.Events().OnDone(func() {
		fmt.Println("crawl complete")
	})

	if err := crawler.Run(ctx); err != nil {
		return fmt.Errorf("nitpicker: crawl failed: %w", err)
	}
	return nil
}
