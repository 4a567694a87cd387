// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hntldr/internal/model"
)

// Supported LLM providers.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Supported feed sources.
const (
	FeedFirebase = "firebase"
	FeedRSS      = "rss"
)

// Error lists every configuration problem found by Load.
// The process must not start when Load returns it.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Flames holds the score thresholds for the 🔥 markers.
type Flames struct {
	Enabled    bool
	Thresholds [3]int
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	ChannelID        string
	AdminUserIDs     []int64
	DatabasePath     string
	LogLevel         string
	MetricsAddr      string

	LLMProvider   string
	LLMAPIKey     string
	LLMModel      string
	LLMMaxTokens  int
	OpenAIBaseURL string

	FeedSource     string
	FeedRSSURL     string
	CandidateLimit int

	PollInterval    time.Duration
	StoriesPerPoll  int
	PostDelay       time.Duration
	Thresholds      model.ThresholdConfig
	MaxArticleChars int
	SummaryMaxChars int

	RefreshInterval time.Duration
	RefreshWindow   time.Duration
	RefreshMinDelta int

	RequestTimeout time.Duration
	Retention      time.Duration
	Flames         Flames
}

// loader accumulates parse errors so Load can report all of them at once.
type loader struct {
	problems []string
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) required(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		l.problems = append(l.problems, key+" is required")
	}
	return v
}

func (l *loader) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("%s must be an integer, got %q", key, raw))
		return def
	}
	return v
}

func (l *loader) positive(key string, def int) int {
	v := l.int(key, def)
	if v <= 0 {
		l.problems = append(l.problems, fmt.Sprintf("%s must be > 0", key))
	}
	return v
}

func (l *loader) bool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		l.problems = append(l.problems, fmt.Sprintf("%s must be a boolean, got %q", key, os.Getenv(key)))
		return def
	}
}

type thresholdVar struct {
	key string
	def int
}

var thresholdVars = map[model.Category]thresholdVar{
	model.CategoryDefault: {"MIN_SCORE_DEFAULT", 100},
	model.CategoryShow:    {"MIN_SCORE_SHOW_HN", 50},
	model.CategoryAsk:     {"MIN_SCORE_ASK_HN", 100},
	model.CategoryLaunch:  {"MIN_SCORE_LAUNCH_HN", 75},
	model.CategoryTell:    {"MIN_SCORE_TELL_HN", 100},
	model.CategoryJob:     {"MIN_SCORE_JOBS", model.Disabled},
}

// thresholds reads one minimum score per known category.
func (l *loader) thresholds() model.ThresholdConfig {
	out := make(model.ThresholdConfig, len(model.Categories))
	for _, c := range model.Categories {
		v, ok := thresholdVars[c]
		if !ok {
			l.problems = append(l.problems, fmt.Sprintf("no threshold variable for category %q", c))
			continue
		}
		out[c] = l.int(v.key, v.def)
	}
	return out
}

func (l *loader) int64s(key string) []int64 {
	raw := os.Getenv(key)
	var out []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			l.problems = append(l.problems, fmt.Sprintf("invalid user ID %q in %s", s, key))
			continue
		}
		out = append(out, id)
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		TelegramBotToken: l.required("TELEGRAM_BOT_TOKEN"),
		ChannelID:        l.required("TELEGRAM_CHANNEL_ID"),
		AdminUserIDs:     l.int64s("ADMIN_USER_ID"),
		DatabasePath:     l.str("DATABASE_PATH", "./data/hntldr.db"),
		LogLevel:         l.str("LOG_LEVEL", "info"),
		MetricsAddr:      l.str("METRICS_ADDR", ""),

		LLMProvider:   strings.ToLower(l.str("LLM_PROVIDER", ProviderClaude)),
		LLMAPIKey:     l.required("LLM_API_KEY"),
		LLMModel:      l.str("LLM_MODEL", "claude-haiku-4-5-20251001"),
		LLMMaxTokens:  l.positive("LLM_MAX_TOKENS", 300),
		OpenAIBaseURL: l.str("OPENAI_BASE_URL", ""),

		FeedSource:     strings.ToLower(l.str("FEED_SOURCE", FeedFirebase)),
		FeedRSSURL:     l.str("FEED_RSS_URL", "https://hnrss.org/frontpage"),
		CandidateLimit: l.positive("CANDIDATE_LIMIT", 50),

		PollInterval:    time.Duration(l.positive("POLL_INTERVAL_MINUTES", 60)) * time.Minute,
		StoriesPerPoll:  l.positive("STORIES_PER_POLL", 3),
		PostDelay:       time.Duration(l.int("POST_DELAY_SECONDS", 3)) * time.Second,
		Thresholds:      l.thresholds(),
		MaxArticleChars: l.positive("MAX_ARTICLE_CHARS", 4000),
		SummaryMaxChars: l.positive("SUMMARY_MAX_CHARS", 400),

		RefreshInterval: time.Duration(l.positive("REFRESH_INTERVAL_MINUTES", 10)) * time.Minute,
		RefreshWindow:   time.Duration(l.positive("REFRESH_WINDOW_HOURS", 3)) * time.Hour,
		RefreshMinDelta: l.positive("REFRESH_MIN_DELTA", 1),

		RequestTimeout: time.Duration(l.positive("REQUEST_TIMEOUT", 15)) * time.Second,
		Retention:      time.Duration(l.int("RETENTION_DAYS", 0)) * 24 * time.Hour,
		Flames: Flames{
			Enabled: l.bool("SHOW_FLAMES", true),
			Thresholds: [3]int{
				l.int("FLAME_THRESHOLD_1", 50),
				l.int("FLAME_THRESHOLD_2", 100),
				l.int("FLAME_THRESHOLD_3", 200),
			},
		},
	}

	if cfg.LLMProvider != ProviderClaude && cfg.LLMProvider != ProviderOpenAI {
		l.problems = append(l.problems,
			fmt.Sprintf("LLM_PROVIDER must be %q or %q, got %q", ProviderClaude, ProviderOpenAI, cfg.LLMProvider))
	}
	if cfg.FeedSource != FeedFirebase && cfg.FeedSource != FeedRSS {
		l.problems = append(l.problems,
			fmt.Sprintf("FEED_SOURCE must be %q or %q, got %q", FeedFirebase, FeedRSS, cfg.FeedSource))
	}
	if cfg.PostDelay < 0 {
		l.problems = append(l.problems, "POST_DELAY_SECONDS must be >= 0")
	}
	if cfg.Retention < 0 {
		l.problems = append(l.problems, "RETENTION_DAYS must be >= 0")
	}
	if cfg.Retention > 0 && cfg.Retention <= cfg.RefreshWindow {
		l.problems = append(l.problems, "RETENTION_DAYS must cover REFRESH_WINDOW_HOURS")
	}

	if len(l.problems) > 0 {
		return nil, &Error{Problems: l.problems}
	}
	return cfg, nil
}
