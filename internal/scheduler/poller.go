package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"hntldr/internal/bot"
	"hntldr/internal/config"
	"hntldr/internal/fetcher"
	"hntldr/internal/filter"
	"hntldr/internal/metrics"
	"hntldr/internal/model"
	"hntldr/internal/storage"
	"hntldr/internal/summarizer"
)

const (
	defaultFetchConcurrency = 10
	defaultCallTimeout      = 15 * time.Second
)

// PollConfig controls a poll cycle.
type PollConfig struct {
	// BatchSize caps how many stories one cycle publishes.
	BatchSize       int
	Thresholds      model.ThresholdConfig
	SummaryMaxChars int
	// MaxArticleChars caps the self text sent to the summarizer when no
	// article text was extracted. Zero means no cap.
	MaxArticleChars int
	// PostDelay is the minimum gap between two posts.
	PostDelay time.Duration
	// CallTimeout bounds every external call.
	CallTimeout      time.Duration
	FetchConcurrency int
	// Retention, when positive, prunes records older than it after each cycle.
	Retention time.Duration
	Flames    config.Flames
}

// Deps are the collaborators shared by both cycles.
type Deps struct {
	Feed       FeedClient
	Articles   ArticleSource
	Summarizer Summarizer
	Publisher  Publisher
	Store      storage.Storage
	Reporter   Reporter
	Metrics    *metrics.Metrics
	Clock      clockwork.Clock
}

func (d Deps) withDefaults() Deps {
	if d.Reporter == nil {
		d.Reporter = nopReporter{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return d
}

// PollStats describes one poll cycle.
type PollStats struct {
	Candidates int
	Fresh      int
	Fetched    int
	Eligible   int
	Published  int
	Failed     int
	Degraded   int
	Pruned     int64
}

// Poller publishes new stories that clear their category threshold.
type Poller struct {
	deps    Deps
	cfg     PollConfig
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(deps Deps, cfg PollConfig, log *slog.Logger) *Poller {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Poller{
		deps:    deps.withDefaults(),
		cfg:     cfg,
		limiter: newLimiter(cfg.PostDelay),
		log:     log,
	}
}

// Run runs one cycle; it matches the Scheduler job signature.
func (p *Poller) Run(ctx context.Context) error {
	_, err := p.RunCycle(ctx)
	return err
}

// RunCycle fetches candidates, publishes the best new ones and records them.
// It returns an error only when the whole cycle had to be abandoned.
func (p *Poller) RunCycle(ctx context.Context) (PollStats, error) {
	var stats PollStats

	listCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	ids, err := p.deps.Feed.ListTopIdentifiers(listCtx)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("list top stories: %w", err)
	}
	stats.Candidates = len(ids)

	// Known stories are dropped before any network call.
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		exists, err := p.deps.Store.Exists(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("check story %s: %w", id, err)
		}
		if !exists {
			fresh = append(fresh, id)
		}
	}
	stats.Fresh = len(fresh)

	fetched := fetchAll(ctx, p.deps.Feed, fresh, p.cfg.FetchConcurrency, p.cfg.CallTimeout, func(id string, err error) {
		if errors.Is(err, fetcher.ErrNotFound) {
			p.log.Debug("story gone", "story_id", id)
			return
		}
		p.log.Warn("fetch story", "story_id", id, "error", err)
	})
	stories := make([]model.Story, 0, len(fetched))
	for _, s := range fetched {
		if s != nil {
			stories = append(stories, *s)
		}
	}
	stats.Fetched = len(stories)

	eligible := filter.Select(stories, p.cfg.Thresholds)
	stats.Eligible = len(eligible)
	batch := rank(eligible, p.cfg.BatchSize)

	for _, story := range batch {
		if err := ctx.Err(); err != nil {
			p.log.Info("poll cycle stopped before next story", "story_id", story.ID)
			return stats, err
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		// From here the story is finished even if shutdown is requested.
		if err := p.publish(context.WithoutCancel(ctx), story, &stats); err != nil {
			return stats, err
		}
	}

	if p.cfg.Retention > 0 {
		n, err := p.deps.Store.Prune(ctx, p.deps.Clock.Now().Add(-p.cfg.Retention))
		if err != nil {
			p.log.Warn("prune post records", "error", err)
		} else {
			stats.Pruned = n
		}
	}

	p.log.Info("poll cycle done",
		"candidates", stats.Candidates, "fresh", stats.Fresh, "eligible", stats.Eligible,
		"published", stats.Published, "failed", stats.Failed, "degraded", stats.Degraded)
	return stats, nil
}

// publish handles one story. A non-nil error aborts the cycle.
func (p *Poller) publish(ctx context.Context, story model.Story, stats *PollStats) error {
	log := p.log.With("story_id", story.ID)

	sum := p.summarize(ctx, story)
	if sum.Degraded {
		stats.Degraded++
		p.deps.Metrics.Summaries.WithLabelValues(metrics.SummaryFallback).Inc()
		log.Info("using title as summary", "reason", sum.Reason)
	} else {
		p.deps.Metrics.Summaries.WithLabelValues(metrics.SummaryGenerated).Inc()
	}

	msg := bot.Render(bot.View{
		StoryID:  story.ID,
		Title:    story.Title,
		URL:      story.URL,
		Hook:     sum.Hook,
		Score:    story.Score,
		Comments: story.Comments,
	}, p.cfg.Flames)

	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	handle, err := p.deps.Publisher.Publish(pubCtx, msg)
	cancel()
	if err != nil {
		stats.Failed++
		p.deps.Metrics.PublishFailures.Inc()
		log.Error("publish story", "error", err)
		p.deps.Reporter.Report(ctx, "publish story "+story.ID, err)
		return nil
	}

	err = p.deps.Store.Record(ctx, model.PostRecord{
		StoryID:  story.ID,
		Handle:   handle,
		Title:    story.Title,
		URL:      story.URL,
		Hook:     sum.Hook,
		Score:    story.Score,
		Comments: story.Comments,
	})
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		// Someone else recorded it between Exists and now; the post stands.
		log.Error("story recorded twice", "error", err)
		p.deps.Reporter.Report(ctx, "record story "+story.ID, err)
	case err != nil:
		return fmt.Errorf("record story %s after publish: %w", story.ID, err)
	}

	stats.Published++
	p.deps.Metrics.StoriesPublished.WithLabelValues(string(story.Category)).Inc()
	log.Info("story published", "score", story.Score, "category", story.Category, "message_id", handle.MessageID)
	return nil
}

func (p *Poller) summarize(ctx context.Context, story model.Story) summarizer.Summary {
	content := truncateRunes(story.Text, p.cfg.MaxArticleChars)
	if story.URL != "" && p.deps.Articles != nil {
		actx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		text, err := p.deps.Articles.Extract(actx, story.URL)
		cancel()
		switch {
		case err != nil:
			p.log.Debug("extract article", "story_id", story.ID, "url", story.URL, "error", err)
		case text != "":
			content = text
		}
	}
	if story.URL == "" && utf8.RuneCountInString(content) < summarizer.MinContentChars {
		return summarizer.Fallback(story.Title, "no content")
	}

	sctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	hook, err := p.deps.Summarizer.Summarize(sctx, summarizer.Request{
		Title:     story.Title,
		URL:       story.URL,
		Content:   content,
		Score:     story.Score,
		Comments:  story.Comments,
		MaxLength: p.cfg.SummaryMaxChars,
	})
	if err != nil {
		return summarizer.Fallback(story.Title, err.Error())
	}
	if hook == "" {
		return summarizer.Fallback(story.Title, "empty summary")
	}
	return summarizer.Generated(hook)
}

// rank orders stories by score, highest first, keeping feed order for ties,
// and keeps at most n.
func rank(stories []model.Story, n int) []model.Story {
	out := append([]model.Story(nil), stories...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func newLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
