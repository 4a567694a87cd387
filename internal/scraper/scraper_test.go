package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Why SQLite is enough</title></head>
<body>
<nav>Home | About | Archive</nav>
<article>
<h1>Why SQLite is enough</h1>
<p>Most small services never outgrow a single SQLite file. The database handles thousands of writes per second once write-ahead logging is on.</p>
<p>Operational cost drops to nearly zero because there is no server to run. Backups are a file copy, and migrations run at process start.</p>
<p>The tradeoffs show up only with many concurrent writers across machines, which most side projects will never have to deal with.</p>
</article>
</body>
</html>`

func serve(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestExtract(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, articleHTML)
	s := New(srv.Client(), 0)

	got, err := s.Extract(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "write-ahead logging") {
		t.Errorf("extracted text missing article body: %q", got)
	}
	if strings.Contains(got, "\n") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestExtractTruncatesRunes(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html><head><title>Long</title></head><body><article>`)
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "<p>Абзац %d с достаточно длинным текстом, чтобы статья была длинной.</p>", i)
	}
	sb.WriteString(`</article></body></html>`)

	srv, _ := serve(t, http.StatusOK, sb.String())
	s := New(srv.Client(), 100)

	got, err := s.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("got %d runes, want 100", n)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}
}

func TestExtractHTTPError(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, _ := serve(t, status, "nope")
			s := New(srv.Client(), 0)
			if _, err := s.Extract(context.Background(), srv.URL); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExtractSkippedURLMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	client := doFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, fmt.Errorf("should not be called")
	})
	s := New(client, 0)

	got, err := s.Extract(context.Background(), "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if calls.Load() != 0 {
		t.Errorf("made %d requests for a skipped url", calls.Load())
	}
}

type doFunc func(*http.Request) (*http.Response, error)

func (f doFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"not a url", true},
		{"https://twitter.com/user/status/1", true},
		{"https://mobile.twitter.com/user", true},
		{"https://x.com/user/status/1", true},
		{"https://youtu.be/abc", true},
		{"https://old.reddit.com/r/golang", true},
		{"https://news.ycombinator.com/item?id=1", true},
		{"https://arxiv.org/abs/2401.00001", true},
		{"https://arxiv.org/pdf/2401.00001", false},
		{"https://github.com/golang", true},
		{"https://github.com/golang/go", true},
		{"https://github.com/golang/go/", true},
		{"https://github.com/golang/go/tree/master/src", true},
		{"https://github.com/golang/go/blob/master/README.md", false},
		{"https://github.com/golang/go/blob/master/main.go", true},
		{"https://github.com/golang/go/issues/1", true},
		{"https://github.com/golang/go/pull/2", true},
		{"https://github.com/golang/go/releases", true},
		{"https://github.com/golang/go/compare/a...b", true},
		{"https://github.com/golang/go/wiki/Home", false},
		{"https://github.com/blog/2024-some-post", false},
		{"https://golang.github.io/post", false},
		{"https://gist.github.com/user/abc", false},
		{"https://raw.githubusercontent.com/user/repo/main/README", false},
		{"https://example.com/article", false},
		{"https://notreddit.com/post", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ShouldSkip(tt.url); got != tt.want {
				t.Errorf("ShouldSkip(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
