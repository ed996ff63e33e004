package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-zero-dev/nitpicker-go/internal/config"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

func mustParse(t *testing.T, raw string) urlutil.Canonical {
	t.Helper()
	c, err := urlutil.Parse(raw)
	require.NoError(t, err)
	return c
}

func TestBuildFailsWithoutSeedURLs(t *testing.T) {
	_, err := config.WithDefault(nil).Build()
	require.Error(t, err)
}

func TestBuildDefaultsScopeToSeeds(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).Build()
	require.NoError(t, err)
	require.Len(t, cfg.ScopeURLs(), 1)
	assert.Equal(t, "http://h/", cfg.ScopeURLs()[0].WithoutHash())
}

func TestFluentBuilderChain(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).
		WithParallels(5).
		WithInterval(200 * time.Millisecond).
		WithRetry(3).
		WithIgnoreRobots(true).
		Build()

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Parallels())
	assert.Equal(t, 200*time.Millisecond, cfg.Interval())
	assert.Equal(t, 3, cfg.Retry())
	assert.True(t, cfg.IgnoreRobots())
}

func TestWithConfigFileLoadsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"seedUrls": ["http://h/"],
		"parallels": 4,
		"intervalMs": 250,
		"retry": 2,
		"userAgent": "test-agent"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.WithConfigFile(path)
	require.NoError(t, err)

	built, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, 4, built.Parallels())
	assert.Equal(t, 250*time.Millisecond, built.Interval())
	assert.Equal(t, 2, built.Retry())
	assert.Equal(t, "test-agent", built.UserAgent())
}
