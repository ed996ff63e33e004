// Package config builds CrawlerOptions (spec §6) through the same fluent
// builder shape the teacher repo uses: private fields, chained With*
// methods, and a Build step that validates and fills in derived defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Config is the crawler's full set of options, every field from spec §6's
// CrawlerOptions plus the seed and scope URL lists.
type Config struct {
	seedURLs  []urlutil.Canonical
	scopeURLs []urlutil.Canonical

	parallels        int
	interval         time.Duration
	recursive        bool
	fromList         bool
	fetchExternal    bool
	captureImages    bool
	executablePath   *string
	excludes         []string
	excludeKeywords  []string
	excludeUrls      []string
	maxExcludedDepth int
	retry            int
	disableQueries   bool
	userAgent        string
	ignoreRobots     bool

	outputPath string
}

// configDTO is the JSON-serializable shape for config-file loading.
type configDTO struct {
	SeedURLs         []string `json:"seedUrls"`
	ScopeURLs        []string `json:"scopeUrls"`
	Parallels        int      `json:"parallels"`
	IntervalMs       int      `json:"intervalMs"`
	Recursive        *bool    `json:"recursive"`
	FromList         bool     `json:"fromList"`
	FetchExternal    bool     `json:"fetchExternal"`
	CaptureImages    bool     `json:"captureImages"`
	ExecutablePath   *string  `json:"executablePath"`
	Excludes         []string `json:"excludes"`
	ExcludeKeywords  []string `json:"excludeKeywords"`
	ExcludeUrls      []string `json:"excludeUrls"`
	MaxExcludedDepth int      `json:"maxExcludedDepth"`
	Retry            int      `json:"retry"`
	DisableQueries   bool     `json:"disableQueries"`
	UserAgent        string   `json:"userAgent"`
	IgnoreRobots     bool     `json:"ignoreRobots"`
	OutputPath       string   `json:"outputPath"`
}

// WithDefault returns a Config seeded with the given seed URLs and the
// teacher's style of concrete defaults, ready for further With* calls.
func WithDefault(seedURLs []urlutil.Canonical) *Config {
	return &Config{
		seedURLs:         seedURLs,
		parallels:        1,
		interval:         0,
		recursive:        true,
		fromList:         false,
		fetchExternal:    false,
		captureImages:    false,
		maxExcludedDepth: 0,
		retry:            0,
		disableQueries:   false,
		userAgent:        "nitpicker-go/1.0",
		ignoreRobots:     false,
		outputPath:       "output.tar",
	}
}

// WithConfigFile reads a JSON config file and returns a Config built from
// it, falling back to WithDefault's values for any field the file omits.
func WithConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var dto configDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	seeds, err := parseAll(dto.SeedURLs)
	if err != nil {
		return nil, err
	}
	scopes, err := parseAll(dto.ScopeURLs)
	if err != nil {
		return nil, err
	}

	cfg := WithDefault(seeds)
	cfg.scopeURLs = scopes
	if dto.Parallels > 0 {
		cfg.parallels = dto.Parallels
	}
	cfg.interval = time.Duration(dto.IntervalMs) * time.Millisecond
	if dto.Recursive != nil {
		cfg.recursive = *dto.Recursive
	}
	cfg.fromList = dto.FromList
	cfg.fetchExternal = dto.FetchExternal
	cfg.captureImages = dto.CaptureImages
	cfg.executablePath = dto.ExecutablePath
	cfg.excludes = dto.Excludes
	cfg.excludeKeywords = dto.ExcludeKeywords
	cfg.excludeUrls = dto.ExcludeUrls
	cfg.maxExcludedDepth = dto.MaxExcludedDepth
	cfg.retry = dto.Retry
	cfg.disableQueries = dto.DisableQueries
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	cfg.ignoreRobots = dto.IgnoreRobots
	if dto.OutputPath != "" {
		cfg.outputPath = dto.OutputPath
	}

	return cfg, nil
}

func parseAll(raw []string) ([]urlutil.Canonical, error) {
	parsed := make([]urlutil.Canonical, 0, len(raw))
	for _, s := range raw {
		c, err := urlutil.Parse(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, c)
	}
	return parsed, nil
}

func (c *Config) WithScopeURLs(urls []urlutil.Canonical) *Config {
	c.scopeURLs = urls
	return c
}

func (c *Config) WithParallels(n int) *Config {
	c.parallels = n
	return c
}

func (c *Config) WithInterval(d time.Duration) *Config {
	c.interval = d
	return c
}

func (c *Config) WithRecursive(recursive bool) *Config {
	c.recursive = recursive
	return c
}

func (c *Config) WithFromList(fromList bool) *Config {
	c.fromList = fromList
	return c
}

func (c *Config) WithFetchExternal(fetchExternal bool) *Config {
	c.fetchExternal = fetchExternal
	return c
}

func (c *Config) WithCaptureImages(captureImages bool) *Config {
	c.captureImages = captureImages
	return c
}

func (c *Config) WithExecutablePath(path string) *Config {
	c.executablePath = &path
	return c
}

func (c *Config) WithExcludes(globs []string) *Config {
	c.excludes = globs
	return c
}

func (c *Config) WithExcludeKeywords(keywords []string) *Config {
	c.excludeKeywords = keywords
	return c
}

func (c *Config) WithExcludeUrls(prefixes []string) *Config {
	c.excludeUrls = prefixes
	return c
}

func (c *Config) WithMaxExcludedDepth(depth int) *Config {
	c.maxExcludedDepth = depth
	return c
}

func (c *Config) WithRetry(retry int) *Config {
	c.retry = retry
	return c
}

func (c *Config) WithDisableQueries(disable bool) *Config {
	c.disableQueries = disable
	return c
}

func (c *Config) WithUserAgent(userAgent string) *Config {
	c.userAgent = userAgent
	return c
}

func (c *Config) WithIgnoreRobots(ignore bool) *Config {
	c.ignoreRobots = ignore
	return c
}

func (c *Config) WithOutputPath(path string) *Config {
	c.outputPath = path
	return c
}

// Build validates the accumulated configuration and returns the final
// Config. At least one seed URL is required; scope defaults to the seed
// URLs themselves (host and path) when none were given.
func (c Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("config: at least one seed URL is required")
	}
	if len(c.scopeURLs) == 0 {
		c.scopeURLs = append([]urlutil.Canonical{}, c.seedURLs...)
	}
	if c.parallels <= 0 {
		c.parallels = 1
	}
	return c, nil
}

func (c Config) SeedURLs() []urlutil.Canonical {
	return append([]urlutil.Canonical{}, c.seedURLs...)
}
func (c Config) ScopeURLs() []urlutil.Canonical {
	return append([]urlutil.Canonical{}, c.scopeURLs...)
}
func (c Config) Parallels() int          { return c.parallels }
func (c Config) Interval() time.Duration { return c.interval }
func (c Config) Recursive() bool         { return c.recursive }
func (c Config) FromList() bool          { return c.fromList }
func (c Config) FetchExternal() bool     { return c.fetchExternal }
func (c Config) CaptureImages() bool     { return c.captureImages }
func (c Config) ExecutablePath() *string { return c.executablePath }
func (c Config) Excludes() []string      { return append([]string{}, c.excludes...) }
func (c Config) ExcludeKeywords() []string {
	return append([]string{}, c.excludeKeywords...)
}
func (c Config) ExcludeUrls() []string { return append([]string{}, c.excludeUrls...) }
func (c Config) MaxExcludedDepth() int { return c.maxExcludedDepth }
func (c Config) Retry() int            { return c.retry }
func (c Config) DisableQueries() bool  { return c.disableQueries }
func (c Config) UserAgent() string     { return c.userAgent }
func (c Config) IgnoreRobots() bool    { return c.ignoreRobots }
func (c Config) OutputPath() string    { return c.outputPath }
