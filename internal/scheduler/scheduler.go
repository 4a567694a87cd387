// Package scheduler runs the poll and refresh cycles on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"hntldr/internal/bot"
	"hntldr/internal/metrics"
	"hntldr/internal/model"
	"hntldr/internal/summarizer"
)

// FeedClient lists and fetches stories.
type FeedClient interface {
	ListTopIdentifiers(ctx context.Context) ([]string, error)
	FetchStory(ctx context.Context, id string) (*model.Story, error)
}

// ArticleSource extracts the text behind a story link.
type ArticleSource interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Summarizer produces a hook for a story.
type Summarizer interface {
	Summarize(ctx context.Context, req summarizer.Request) (string, error)
}

// Publisher posts and edits channel messages.
type Publisher interface {
	Publish(ctx context.Context, msg bot.Message) (model.MessageHandle, error)
	Edit(ctx context.Context, h model.MessageHandle, msg bot.Message) error
}

// Reporter forwards operational errors to an operator.
type Reporter interface {
	Report(ctx context.Context, where string, err error)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, error) {}

// Scheduler runs cycles on independent intervals. A cycle never overlaps
// with itself; different cycles may run concurrently.
type Scheduler struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	reporter Reporter
	clock    clockwork.Clock
	jobs     []job
}

type job struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
}

// New creates a Scheduler. metrics and reporter may be nil.
func New(log *slog.Logger, m *metrics.Metrics, reporter Reporter, clock clockwork.Clock) *Scheduler {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Scheduler{log: log, metrics: m, reporter: reporter, clock: clock}
}

// Add registers a cycle. It runs once when Run starts and then every interval.
func (s *Scheduler) Add(name string, every time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, job{name: name, every: every, run: run})
}

// Run blocks until ctx is done, then waits for running cycles to finish.
func (s *Scheduler) Run(ctx context.Context) {
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger))

	var startup sync.WaitGroup
	for _, j := range s.jobs {
		wrapped := cron.NewChain(cron.Recover(logger), cron.DelayIfStillRunning(logger)).
			Then(cron.FuncJob(func() { s.runOnce(ctx, j) }))
		c.Schedule(cron.Every(j.every), wrapped)

		startup.Add(1)
		go func() {
			defer startup.Done()
			wrapped.Run()
		}()
		s.log.Info("cycle scheduled", "cycle", j.name, "every", j.every)
	}

	c.Start()
	<-ctx.Done()
	s.log.Info("scheduler stopping, waiting for running cycles")

	<-c.Stop().Done()
	startup.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context, j job) {
	if ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	err := j.run(ctx)
	elapsed := s.clock.Since(start)

	switch {
	case err == nil:
		s.log.Debug("cycle finished", "cycle", j.name, "duration", elapsed)
	case errors.Is(err, context.Canceled):
		s.log.Info("cycle interrupted by shutdown", "cycle", j.name, "duration", elapsed)
		err = nil
	default:
		s.log.Error("cycle failed", "cycle", j.name, "duration", elapsed, "error", err)
		s.reporter.Report(context.WithoutCancel(ctx), j.name+" cycle", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveCycle(j.name, elapsed.Seconds(), err)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// fetchAll fetches stories concurrently and returns them in input order.
// Missing entries are nil; their errors are passed to onErr.
func fetchAll(ctx context.Context, feed FeedClient, ids []string, limit int, timeout time.Duration,
	onErr func(id string, err error)) []*model.Story {
	out := make([]*model.Story, len(ids))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			story, err := feed.FetchStory(fctx, id)
			if err != nil {
				onErr(id, err)
				return nil
			}
			out[i] = story
			return nil
		})
	}
	_ = g.Wait()
	return out
}
