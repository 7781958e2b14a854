// Package duckduckgo scrapes the DuckDuckGo HTML endpoint and expands each
// hit into readable article text. No API key required, which makes it the
// cheapest live backend in the rotation.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/sira-labs/sira/internal/search/models"
)

const (
	htmlEndpoint = "https://html.duckduckgo.com/html/"
	userAgent    = "Mozilla/5.0 (compatible; sira/1.0)"

	// Pages whose extracted text is shorter than this are kept as bare
	// snippets; short extractions are usually consent walls or errors.
	minContentWords = 50
)

type Search struct {
	Client *http.Client
	// FetchPages expands result links into full article text. Disabled in
	// tests and in latency-sensitive paths.
	FetchPages bool
}

func (s Search) Fetch(ctx context.Context, topic string, k int) ([]models.Result, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{"q": {topic}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, htmlEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []models.Result
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a")
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		href = resolveRedirect(href)
		if href == "" {
			return true
		}
		res := models.Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     href,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		}
		if s.FetchPages {
			if text := s.fetchText(ctx, client, href); text != "" {
				res.Snippet = text
			}
		}
		out = append(out, res)
		return len(out) < k
	})
	return out, nil
}

// fetchText downloads a page and extracts its readable body. Failures fall
// back to the search snippet.
func (s Search) fetchText(ctx context.Context, client *http.Client, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(strings.Fields(text)) < minContentWords {
		return ""
	}
	return text
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		u, err := url.Parse(href)
		if err != nil {
			return href
		}
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return ""
}
