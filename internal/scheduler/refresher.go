package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"hntldr/internal/bot"
	"hntldr/internal/config"
	"hntldr/internal/fetcher"
	"hntldr/internal/model"
	"hntldr/internal/storage"
)

// DefaultEditDelay is the gap between two edits.
const DefaultEditDelay = time.Second

// RefreshConfig controls a refresh cycle.
type RefreshConfig struct {
	// Window limits refreshes to stories first posted this recently.
	Window time.Duration
	// MinDelta is the smallest score or comment change worth an edit.
	MinDelta         int
	EditDelay        time.Duration
	CallTimeout      time.Duration
	FetchConcurrency int
	Flames           config.Flames
}

// RefreshStats describes one refresh cycle.
type RefreshStats struct {
	Recent    int
	Fetched   int
	Unchanged int
	Edited    int
	Failed    int
}

// Refresher keeps the counts of recently posted messages current.
type Refresher struct {
	deps    Deps
	cfg     RefreshConfig
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(deps Deps, cfg RefreshConfig, log *slog.Logger) *Refresher {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MinDelta <= 0 {
		cfg.MinDelta = 1
	}
	return &Refresher{
		deps:    deps.withDefaults(),
		cfg:     cfg,
		limiter: newLimiter(cfg.EditDelay),
		log:     log,
	}
}

// Run runs one cycle; it matches the Scheduler job signature.
func (r *Refresher) Run(ctx context.Context) error {
	_, err := r.RunCycle(ctx)
	return err
}

// RunCycle edits recently posted messages whose counts moved significantly.
// It never creates post records.
func (r *Refresher) RunCycle(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	recs, err := r.deps.Store.RecentlyPosted(ctx, r.cfg.Window)
	if err != nil {
		return stats, fmt.Errorf("list recent posts: %w", err)
	}
	stats.Recent = len(recs)
	if len(recs) == 0 {
		return stats, nil
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.StoryID
	}
	stories := fetchAll(ctx, r.deps.Feed, ids, r.cfg.FetchConcurrency, r.cfg.CallTimeout, func(id string, err error) {
		if errors.Is(err, fetcher.ErrNotFound) {
			r.log.Debug("posted story gone", "story_id", id)
			return
		}
		r.log.Warn("refetch story", "story_id", id, "error", err)
	})

	for i, rec := range recs {
		story := stories[i]
		if story == nil {
			continue
		}
		stats.Fetched++

		if !r.significant(rec, story) {
			stats.Unchanged++
			continue
		}

		if err := ctx.Err(); err != nil {
			r.log.Info("refresh cycle stopped before next story", "story_id", rec.StoryID)
			return stats, err
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		if err := r.refresh(context.WithoutCancel(ctx), rec, story, &stats); err != nil {
			return stats, err
		}
	}

	r.log.Info("refresh cycle done",
		"recent", stats.Recent, "edited", stats.Edited, "unchanged", stats.Unchanged, "failed", stats.Failed)
	return stats, nil
}

func (r *Refresher) significant(rec model.PostRecord, story *model.Story) bool {
	return abs(story.Score-rec.Score) >= r.cfg.MinDelta ||
		abs(story.Comments-rec.Comments) >= r.cfg.MinDelta
}

// refresh edits one message. A non-nil error aborts the cycle.
func (r *Refresher) refresh(ctx context.Context, rec model.PostRecord, story *model.Story, stats *RefreshStats) error {
	log := r.log.With("story_id", rec.StoryID)
	msg := bot.Render(bot.ViewOf(rec, story.Score, story.Comments), r.cfg.Flames)

	ectx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	err := r.deps.Publisher.Edit(ectx, rec.Handle, msg)
	cancel()
	if err != nil {
		// The record is left as is so the next cycle retries until the
		// story leaves the window.
		stats.Failed++
		r.deps.Metrics.EditFailures.Inc()
		log.Warn("edit message", "message_id", rec.Handle.MessageID, "error", err)
		r.deps.Reporter.Report(ctx, "edit story "+rec.StoryID, err)
		return nil
	}

	err = r.deps.Store.Touch(ctx, rec.StoryID, story.Score, story.Comments, r.deps.Clock.Now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Warn("post record vanished during refresh", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("touch story %s: %w", rec.StoryID, err)
	}

	stats.Edited++
	r.deps.Metrics.MessagesEdited.Inc()
	log.Debug("message refreshed",
		"score", fmt.Sprintf("%d→%d", rec.Score, story.Score),
		"comments", fmt.Sprintf("%d→%d", rec.Comments, story.Comments))
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
