package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-zero-dev/nitpicker-go/internal/scraper"
)

func TestScrapeExtractsMetaAndAnchors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html lang="en"><head>
			<title>Hello</title>
			<meta name="description" content="a page">
			<meta property="og:title" content="Hello OG">
			<link rel="canonical" href="http://h/canonical">
		</head><body><a href="/a">A</a><a href="/b">B</a></body></html>`))
	}))
	defer server.Close()

	s := scraper.NewDefaultScraper(nil)
	result := s.Scrape(context.Background(), server.URL, scraper.Options{Mode: scraper.ModeFullScrape})

	require.Equal(t, scraper.ResultSuccess, result.Type)
	assert.Equal(t, "Hello", result.PageData.Meta.Title)
	assert.Equal(t, "a page", result.PageData.Meta.Description)
	assert.Equal(t, "Hello OG", result.PageData.Meta.OpenGraph["og:title"])
	assert.Equal(t, "http://h/canonical", result.PageData.Meta.Canonical)
	assert.Len(t, result.PageData.Anchors, 2)
	assert.True(t, result.PageData.IsTarget)
}

func TestScrapeMetadataOnlySkipsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/a">A</a></body></html>`))
	}))
	defer server.Close()

	s := scraper.NewDefaultScraper(nil)
	result := s.Scrape(context.Background(), server.URL, scraper.Options{Mode: scraper.ModeMetadataOnly})

	require.Equal(t, scraper.ResultSuccess, result.Type)
	assert.Empty(t, result.PageData.Anchors)
	assert.Empty(t, result.PageData.HTML)
}

func TestScrapeReturnsErrorOnTransportFailure(t *testing.T) {
	s := scraper.NewDefaultScraper(nil)
	result := s.Scrape(context.Background(), "http://127.0.0.1:1", scraper.Options{})

	assert.Equal(t, scraper.ResultError, result.Type)
	require.NotNil(t, result.Err)
}

func TestScrape4xxIsNotTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := scraper.NewDefaultScraper(nil)
	result := s.Scrape(context.Background(), server.URL, scraper.Options{Mode: scraper.ModeFullScrape})

	require.Equal(t, scraper.ResultSuccess, result.Type)
	assert.False(t, result.PageData.IsTarget)
	assert.Equal(t, 404, result.PageData.StatusCode)
}
