// Package cli is the crawler's cobra command tree: a crawl subcommand
// taking repeatable --seed-url and --scope-url flags, --config-file for
// JSON config, and flags mirroring every CrawlerOptions field in spec §6.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/d-zero-dev/nitpicker-go/internal/config"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

var (
	cfgFile          string
	seedURLs         []string
	scopeURLs        []string
	parallels        int
	interval         time.Duration
	recursive        bool
	fromList         bool
	fetchExternal    bool
	captureImages    bool
	executablePath   string
	excludes         []string
	excludeKeywords  []string
	excludeUrls      []string
	maxExcludedDepth int
	retry            int
	disableQueries   bool
	userAgent        string
	ignoreRobots     bool
	outputPath       string
)

// rootCmd is the base command; crawling itself lives under the crawl
// subcommand so future subcommands (e.g. a future analyze front-end) have
// a home beside it.
var rootCmd = &cobra.Command{
	Use:   "nitpicker",
	Short: "A breadth-first web site crawler producing a self-contained archive.",
	Long: `nitpicker discovers, fetches, and persists every reachable page under
one or more scope roots, producing a tar archive of a JSON catalog and
HTML snapshots that downstream analysis and reporting tools read.`,
}

// crawlCmd runs one crawl session and exits; its RunE builds the Config and
// hands the crawl itself to the caller (main.go) via the Runner hook so this
// package stays free of the scraper/archive wiring it has no business owning.
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the given seed URLs and write an archive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}
		if Runner == nil {
			return fmt.Errorf("cli: no Runner configured")
		}
		return Runner(cmd.Context(), cfg)
	},
}

// Runner is set by main.go to the function that actually executes a crawl
// for a built Config. Keeping it as an injected hook keeps this package
// free of a direct dependency on the orchestrator/scraper/archive wiring.
var Runner func(ctx context.Context, cfg config.Config) error

// Execute adds all child commands to the root command and runs it. It is
// called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&cfgFile, "config-file", "", "JSON config file path; overrides all other flags when set")
	crawlCmd.Flags().StringArrayVar(&seedURLs, "seed-url", nil, "one or more starting URLs (can be repeated)")
	crawlCmd.Flags().StringArrayVar(&scopeURLs, "scope-url", nil, "one or more scope roots (can be repeated); may include userinfo")
	crawlCmd.Flags().IntVar(&parallels, "parallels", 1, "max concurrent scrapes")
	crawlCmd.Flags().DurationVar(&interval, "interval", 0, "minimum gap between dispatches")
	crawlCmd.Flags().BoolVar(&recursive, "recursive", true, "follow discovered anchors")
	crawlCmd.Flags().BoolVar(&fromList, "from-list", false, "treat seeds as the complete URL set; do not follow anchors")
	crawlCmd.Flags().BoolVar(&fetchExternal, "fetch-external", false, "fetch metadata for external anchors")
	crawlCmd.Flags().BoolVar(&captureImages, "capture-images", false, "record <img> references on scraped pages")
	crawlCmd.Flags().StringVar(&executablePath, "executable-path", "", "path to a headless-browser executable, if the scraper needs one")
	crawlCmd.Flags().StringArrayVar(&excludes, "exclude", nil, "glob pattern to exclude (can be repeated)")
	crawlCmd.Flags().StringArrayVar(&excludeKeywords, "exclude-keyword", nil, "keyword to exclude (can be repeated)")
	crawlCmd.Flags().StringArrayVar(&excludeUrls, "exclude-url", nil, "URL prefix to exclude (can be repeated)")
	crawlCmd.Flags().IntVar(&maxExcludedDepth, "max-excluded-depth", 0, "max anchor depth followed past an excluded boundary")
	crawlCmd.Flags().IntVar(&retry, "retry", 0, "retry count for transport/5xx failures")
	crawlCmd.Flags().BoolVar(&disableQueries, "disable-queries", false, "strip query strings during canonicalization")
	crawlCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests and robots.txt lookups")
	crawlCmd.Flags().BoolVar(&ignoreRobots, "ignore-robots", false, "disable the robots.txt gate")
	crawlCmd.Flags().StringVar(&outputPath, "output", "output.tar", "archive output path")
}

// InitConfigWithError builds a Config from --config-file if set, otherwise
// from the individual flags, returning any validation error instead of
// exiting so callers (and tests) can handle it.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		built, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return config.Config{}, err
		}
		return built.Build()
	}

	if len(seedURLs) == 0 {
		return config.Config{}, fmt.Errorf("cli: --seed-url is required when --config-file is not set")
	}

	seeds, err := parseAll(seedURLs)
	if err != nil {
		return config.Config{}, err
	}
	scopes, err := parseAll(scopeURLs)
	if err != nil {
		return config.Config{}, err
	}

	builder := config.WithDefault(seeds).
		WithScopeURLs(scopes).
		WithParallels(parallels).
		WithInterval(interval).
		WithRecursive(recursive).
		WithFromList(fromList).
		WithFetchExternal(fetchExternal).
		WithCaptureImages(captureImages).
		WithExcludes(excludes).
		WithExcludeKeywords(excludeKeywords).
		WithExcludeUrls(excludeUrls).
		WithMaxExcludedDepth(maxExcludedDepth).
		WithRetry(retry).
		WithDisableQueries(disableQueries).
		WithIgnoreRobots(ignoreRobots).
		WithOutputPath(outputPath)

	if executablePath != "" {
		builder = builder.WithExecutablePath(executablePath)
	}
	if userAgent != "" {
		builder = builder.WithUserAgent(userAgent)
	}

	return builder.Build()
}

func parseAll(raw []string) ([]urlutil.Canonical, error) {
	parsed := make([]urlutil.Canonical, 0, len(raw))
	for _, s := range raw {
		c, err := urlutil.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("cli: parsing %q: %w", s, err)
		}
		parsed = append(parsed, c)
	}
	return parsed, nil
}

// ResetFlags restores every package-level flag variable to its flag default;
// tests call this between cases since cobra flags are package globals.
func ResetFlags() {
	cfgFile = ""
	seedURLs = nil
	scopeURLs = nil
	parallels = 1
	interval = 0
	recursive = true
	fromList = false
	fetchExternal = false
	captureImages = false
	executablePath = ""
	excludes = nil
	excludeKeywords = nil
	excludeUrls = nil
	maxExcludedDepth = 0
	retry = 0
	disableQueries = false
	userAgent = ""
	ignoreRobots = false
	outputPath = "output.tar"
}

// Test helper functions to set flag values directly, mirroring the
// package's own flag-parsing path without going through cobra's Execute.
func SetConfigFileForTest(path string)       { cfgFile = path }
func SetSeedURLsForTest(urls []string)       { seedURLs = urls }
func SetScopeURLsForTest(urls []string)      { scopeURLs = urls }
func SetParallelsForTest(n int)              { parallels = n }
func SetIntervalForTest(d time.Duration)     { interval = d }
func SetRecursiveForTest(recurse bool)       { recursive = recurse }
func SetFromListForTest(v bool)              { fromList = v }
func SetFetchExternalForTest(v bool)         { fetchExternal = v }
func SetCaptureImagesForTest(v bool)         { captureImages = v }
func SetExecutablePathForTest(path string)   { executablePath = path }
func SetExcludesForTest(globs []string)      { excludes = globs }
func SetExcludeKeywordsForTest(kw []string)  { excludeKeywords = kw }
func SetExcludeUrlsForTest(prefix []string)  { excludeUrls = prefix }
func SetMaxExcludedDepthForTest(depth int)   { maxExcludedDepth = depth }
func SetRetryForTest(n int)                  { retry = n }
func SetDisableQueriesForTest(v bool)        { disableQueries = v }
func SetUserAgentForTest(agent string)       { userAgent = agent }
func SetIgnoreRobotsForTest(v bool)          { ignoreRobots = v }
func SetOutputPathForTest(path string)       { outputPath = path }
