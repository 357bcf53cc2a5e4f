// Package scrape fetches a business website and summarizes what the page
// generator can reuse from it.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
)

const (
	defaultTimeout = 15 * time.Second
	maxPageBytes   = 2 << 20
	userAgent      = "sitebuilder-scraper/0.1"
)

// Summary is what one fetch of a website yields.
type Summary struct {
	URL         string   `json:"url"`
	StatusCode  int      `json:"status_code"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Headings    []string `json:"headings,omitempty"`
	Images      []string `json:"images,omitempty"`
	Links       int      `json:"links"`
}

// Scraper fetches one page per call.
type Scraper struct {
	client *http.Client
	logger logging.Logger
}

// New returns a Scraper. A nil httpClient gets a 15s timeout.
func New(httpClient *http.Client, logger logging.Logger) *Scraper {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Scraper{
		client: httpClient,
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "scrape"}),
	}
}

// Scrape canonicalizes rawURL, fetches it and extracts the title, meta
// description, h1/h2 headings, image sources and the link count. A non-2xx
// response is an error.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Summary, error) {
	target, err := Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("website fetch failed", logging.Field{Key: "url", Value: target}, logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}

	sum := &Summary{
		URL:        target,
		StatusCode: resp.StatusCode,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Links:      doc.Find("a[href]").Length(),
	}
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		sum.Description = strings.TrimSpace(d)
	}
	doc.Find("h1, h2").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.Join(strings.Fields(sel.Text()), " "); t != "" {
			sum.Headings = append(sum.Headings, t)
		}
	})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if ref, err := req.URL.Parse(strings.TrimSpace(src)); err == nil && src != "" {
			sum.Images = append(sum.Images, ref.String())
		}
	})

	s.logger.Info("website scraped",
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "images", Value: len(sum.Images)},
		logging.Field{Key: "latency", Value: time.Since(start).String()})
	return sum, nil
}
