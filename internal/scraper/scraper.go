// Package scraper downloads linked articles and extracts their readable text.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; hntldr/1.0)"
	maxPageBytes = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scraper extracts article text.
type Scraper struct {
	client   HTTPClient
	maxChars int
}

// New creates a Scraper that keeps at most maxChars runes of text.
// A maxChars <= 0 disables truncation.
func New(client HTTPClient, maxChars int) *Scraper {
	return &Scraper{client: client, maxChars: maxChars}
}

// Extract returns the readable text of the page at rawURL.
// Pages that never carry useful prose return "" without error.
func (s *Scraper) Extract(ctx context.Context, rawURL string) (string, error) {
	if ShouldSkip(rawURL) {
		return "", nil
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	return truncate(text, s.maxChars), nil
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var skipHosts = []string{
	"twitter.com", "x.com", "youtube.com", "youtu.be", "reddit.com", "news.ycombinator.com",
}

var githubSkipActions = map[string]bool{
	"issues": true, "pull": true, "pulls": true, "actions": true,
	"releases": true, "commits": true, "commit": true, "compare": true,
}

// ShouldSkip reports whether a URL is not worth scraping: social media,
// video, discussion threads, arXiv abstracts and GitHub pages that are mostly
// code browsing.
func ShouldSkip(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	path := strings.TrimRight(u.Path, "/")

	for _, d := range skipHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}

	if strings.Contains(host, "arxiv.org") && strings.HasPrefix(path, "/abs/") {
		return true
	}

	if host == "github.com" {
		return skipGitHub(path)
	}
	return false
}

func skipGitHub(path string) bool {
	if strings.HasPrefix(path, "/blog") {
		return false
	}

	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	// Profiles and repository roots.
	if len(parts) <= 2 {
		return true
	}

	switch action := parts[2]; {
	case action == "tree":
		return true
	case action == "blob":
		return !strings.HasSuffix(strings.ToLower(path), ".md")
	default:
		return githubSkipActions[action]
	}
}
