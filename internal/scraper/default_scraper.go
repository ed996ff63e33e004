package scraper

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultScraper is a plain HTTP + goquery scraper: it does not execute
// JavaScript or render the page, so it is a reference/testing adapter
// only, not the headless-browser Scraper production crawls plug in behind
// this same port (spec §1).
type DefaultScraper struct {
	client *http.Client
}

// NewDefaultScraper constructs a DefaultScraper using client, or
// http.DefaultClient if nil.
func NewDefaultScraper(client *http.Client) *DefaultScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &DefaultScraper{client: client}
}

func (s *DefaultScraper) Scrape(ctx context.Context, target string, opts Options) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Type: ResultError, Err: &ScraperError{Name: "InvalidRequest", Message: err.Error()}}
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Type: ResultError, Err: &ScraperError{Name: "TransportError", Message: err.Error()}}
	}
	defer resp.Body.Close()

	redirectChain, redirectHops := redirectChainOf(resp)

	headers := headersSubset(resp.Header)
	contentLength := contentLengthOf(resp)

	page := PageData{
		URL:           resp.Request.URL.String(),
		RedirectChain: redirectChain,
		RedirectHops:  redirectHops,
		StatusCode:    resp.StatusCode,
		StatusText:    http.StatusText(resp.StatusCode),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: contentLength,
		Headers:       headers,
		IsExternal:    false,
		IsSkipped:     false,
	}
	page.IsTarget = resp.StatusCode >= 200 && resp.StatusCode < 300

	if opts.Mode == ModeMetadataOnly {
		io.Copy(io.Discard, resp.Body)
		return Result{Type: ResultSuccess, PageData: page}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{Type: ResultError, Err: &ScraperError{Name: "ReadError", Message: err.Error()}}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Result{Type: ResultError, Err: &ScraperError{Name: "ParseError", Message: err.Error()}}
	}

	page.HTML = string(body)
	page.Meta = extractMeta(doc)
	page.Anchors = extractAnchors(doc)
	if opts.CaptureImages {
		page.Images = extractImages(doc)
	}

	return Result{Type: ResultSuccess, PageData: page}
}

// redirectChainOf walks the chain of prior responses net/http retains on
// Request.Response for each hop the client followed, returning the visited
// URLs (original first) and the same hops paired with the redirect status
// each one returned.
func redirectChainOf(resp *http.Response) ([]string, []RedirectHop) {
	var chain []string
	var hops []RedirectHop
	for r := resp.Request.Response; r != nil; r = r.Request.Response {
		url := r.Request.URL.String()
		chain = append([]string{url}, chain...)
		hops = append([]RedirectHop{{URL: url, StatusCode: r.StatusCode, StatusText: http.StatusText(r.StatusCode)}}, hops...)
	}
	return chain, hops
}

func contentLengthOf(resp *http.Response) *int64 {
	if resp.ContentLength < 0 {
		return nil
	}
	length := resp.ContentLength
	return &length
}

var headerAllowlist = map[string]bool{
	"content-type":     true,
	"content-length":   true,
	"last-modified":    true,
	"etag":             true,
	"cache-control":    true,
	"content-encoding": true,
	"server":           true,
}

func headersSubset(header http.Header) map[string]string {
	subset := make(map[string]string)
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		if headerAllowlist[strings.ToLower(key)] {
			subset[key] = values[0]
		}
	}
	return subset
}

func extractMeta(doc *goquery.Document) Meta {
	meta := Meta{OpenGraph: make(map[string]string)}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	meta.Lang, _ = doc.Find("html").First().Attr("lang")

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		property, _ := sel.Attr("property")
		content, _ := sel.Attr("content")

		switch {
		case strings.EqualFold(name, "description"):
			meta.Description = content
		case strings.EqualFold(name, "robots"):
			meta.RobotsMeta = content
		case strings.HasPrefix(property, "og:"):
			meta.OpenGraph[property] = content
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.Canonical = href
	}
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			meta.Alternates = append(meta.Alternates, href)
		}
	})

	return meta
}

func extractAnchors(doc *goquery.Document) []Anchor {
	var anchors []Anchor
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		anchors = append(anchors, Anchor{
			Href: href,
			Text: strings.TrimSpace(sel.Text()),
		})
	})
	return anchors
}

func extractImages(doc *goquery.Document) []Image {
	var images []Image
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			return
		}
		alt, _ := sel.Attr("alt")
		images = append(images, Image{Src: src, Alt: alt})
	})
	return images
}
