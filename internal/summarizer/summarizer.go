// Package summarizer turns a story and its article text into a one or two
// sentence hook via a language model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinContentChars is the shortest article text worth sending to the model.
const MinContentChars = 100

const minReplyChars = 15

// ErrUnusable is returned when the model reply cannot be turned into a hook.
var ErrUnusable = errors.New("unusable summary")

const promptTemplate = `You are summarizing Hacker News stories for a technical audience that is tired of clickbait and vague titles.

Story title: %s
Article URL: %s
%s
HN score: %d points | %d comments

Write a summary in exactly this format:
HOOK: 1-2 sentences (prefer 1; 20-45 words total) that plainly state what is being posted and why it matters.

Rules:
- No "This article...", "The author...", "A new...", or filler openers
- No hedging ("might", "could", "seems to")
- Be direct and slightly opinionated, write like a smart friend texting you
- If it's a tool/project: name what it does concretely
- If it's an essay/opinion: state the actual argument
- If it's news: say what changed and who it affects

Output ONLY the HOOK: line. Nothing else.`

// Request is a single summarization request.
type Request struct {
	Title    string
	URL      string
	Content  string
	Score    int
	Comments int
	// MaxLength caps the hook in runes. Zero means no cap.
	MaxLength int
}

// Summary is either a generated hook or a degraded title-derived one.
type Summary struct {
	Hook     string
	Degraded bool
	// Reason explains a degraded summary.
	Reason string
}

// Generated wraps a model-produced hook.
func Generated(hook string) Summary {
	return Summary{Hook: hook}
}

// Fallback builds a degraded summary from the story title.
func Fallback(title, reason string) Summary {
	return Summary{Hook: TitleFallback(title), Degraded: true, Reason: reason}
}

// LLM summarizes stories with a Completer.
type LLM struct {
	completer Completer
	maxTokens int
	logger    *slog.Logger
}

// New creates an LLM summarizer.
func New(completer Completer, maxTokens int, logger *slog.Logger) *LLM {
	return &LLM{completer: completer, maxTokens: maxTokens, logger: logger}
}

// Summarize returns the hook for req. It fails with ErrUnusable when the
// model answers with nothing worth posting.
func (l *LLM) Summarize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("%w: no title", ErrUnusable)
	}

	raw, err := l.completer.Complete(ctx, BuildPrompt(req), l.maxTokens)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if utf8.RuneCountInString(raw) < minReplyChars {
		l.logger.Warn("summary too short", "title", req.Title, "length", utf8.RuneCountInString(raw))
		return "", fmt.Errorf("%w: reply too short", ErrUnusable)
	}

	hook := ParseHook(raw)
	if hook == "" {
		return "", fmt.Errorf("%w: empty hook", ErrUnusable)
	}
	return truncate(hook, req.MaxLength), nil
}

// BuildPrompt renders the model prompt for req.
func BuildPrompt(req Request) string {
	url := req.URL
	if url == "" {
		url = "N/A"
	}
	var content string
	if utf8.RuneCountInString(req.Content) > MinContentChars {
		content = fmt.Sprintf("Article content (first %d chars):\n%s", utf8.RuneCountInString(req.Content), req.Content)
	}
	return fmt.Sprintf(promptTemplate, req.Title, url, content, req.Score, req.Comments)
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// ParseHook pulls the HOOK: line out of a model reply. A reply without
// one is used as plain text, keeping its first sentence. The result has at
// most two sentences.
func ParseHook(raw string) string {
	var hook string
	marked := false
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "HOOK:") {
			hook = strings.Trim(strings.TrimSpace(line[len("HOOK:"):]), `"'`)
			marked = true
		}
	}

	if !marked {
		text := strings.Trim(strings.TrimSpace(raw), `"'`)
		if text == "" {
			return ""
		}
		hook = sentences(text)[0]
	}

	s := sentences(hook)
	if len(s) > 2 {
		s = s[:2]
	}
	return strings.TrimSpace(strings.Join(s, " "))
}

func sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation; keep it with the sentence.
		out = append(out, text[last:loc[0]+1])
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" || len(out) == 0 {
		out = append(out, rest)
	}
	return out
}

var (
	yearSuffix = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)
	pdfSuffix  = regexp.MustCompile(`(?i)\s*\[pdf\]\s*$`)
)

// TitleFallback cleans up a title for use as a hook: "(2024)" style year
// suffixes are removed and "[pdf]" becomes "(PDF)".
func TitleFallback(title string) string {
	title = yearSuffix.ReplaceAllString(title, "")
	title = pdfSuffix.ReplaceAllString(title, " (PDF)")
	return strings.TrimSpace(title)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
