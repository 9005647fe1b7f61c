// internal/scrape/scraper.go
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxReferenceRunes caps how much scraped text is fed to the generator.
const maxReferenceRunes = 8000

// Result is the text extracted from a source page.
type Result struct {
	Title string
	Text  string
}

// Scraper fetches source pages used as generation reference material.
type Scraper struct {
	client *http.Client
	logger *zap.Logger
}

// NewScraper builds a scraper with a bounded HTTP client.
func NewScraper(logger *zap.Logger) *Scraper {
	return &Scraper{
		client: &http.Client{Timeout: 20 * time.Second},
		logger: logger.Named("scraper"),
	}
}

// Fetch downloads the page and extracts its readable text.
func (s *Scraper) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s returned status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("%s is not an HTML page (content-type %s)", url, ct)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	result := extract(doc)
	s.logger.Debug("Scraped reference page.",
		zap.String("url", url),
		zap.String("title", result.Title),
		zap.Int("text_len", len(result.Text)))
	return result, nil
}

// extract pulls the title and readable body text from the document.
func extract(doc *goquery.Document) *Result {
	doc.Find("script, style, noscript, nav, header, footer, aside, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		title = strings.TrimSpace(og)
	}

	// Prefer the article body when the page marks one up.
	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = doc.Find("main").First()
	}
	if body.Length() == 0 {
		body = doc.Find("body").First()
	}

	var parts []string
	body.Find("h1, h2, h3, p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	text := strings.Join(parts, "\n")
	if runes := []rune(text); len(runes) > maxReferenceRunes {
		text = string(runes[:maxReferenceRunes])
	}

	return &Result{Title: title, Text: text}
}
