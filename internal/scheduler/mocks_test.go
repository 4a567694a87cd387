package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"hntldr/internal/bot"
	"hntldr/internal/fetcher"
	"hntldr/internal/model"
	"hntldr/internal/storage"
	"hntldr/internal/summarizer"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, clock clockwork.Clock) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLiteWithClock(":memory:", clock)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// mockFeed serves a fixed front page. Stories are looked up by id.
type mockFeed struct {
	mu      sync.Mutex
	ids     []string
	stories map[string]model.Story
	errs    map[string]error
	listErr error
	fetched []string
}

func newMockFeed(stories ...model.Story) *mockFeed {
	f := &mockFeed{stories: map[string]model.Story{}, errs: map[string]error{}}
	for _, s := range stories {
		f.ids = append(f.ids, s.ID)
		f.stories[s.ID] = s
	}
	return f
}

func (f *mockFeed) ListTopIdentifiers(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.ids...), nil
}

func (f *mockFeed) FetchStory(_ context.Context, id string) (*model.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	s, ok := f.stories[id]
	if !ok {
		return nil, fetcher.ErrNotFound
	}
	return &s, nil
}

func (f *mockFeed) setStory(s model.Story) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stories[s.ID] = s
}

func (f *mockFeed) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *mockFeed) resetFetched() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = nil
}

type mockSummarizer struct {
	mu       sync.Mutex
	hook     string
	err      error
	requests []summarizer.Request
}

func (m *mockSummarizer) Summarize(_ context.Context, req summarizer.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if m.hook != "" {
		return m.hook, nil
	}
	return "Hook for " + req.Title + ".", nil
}

func (m *mockSummarizer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockArticles struct {
	text string
	err  error
}

func (m *mockArticles) Extract(context.Context, string) (string, error) {
	return m.text, m.err
}

type edit struct {
	handle model.MessageHandle
	msg    bot.Message
}

// mockPublisher records messages. publishHook and editHook, when set, run
// before a call and may fail it.
type mockPublisher struct {
	mu          sync.Mutex
	nextID      int
	published   []bot.Message
	edits       []edit
	publishHook func(n int, msg bot.Message) error
	editHook    func(h model.MessageHandle) error
}

func (m *mockPublisher) Publish(_ context.Context, msg bot.Message) (model.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishHook != nil {
		if err := m.publishHook(len(m.published), msg); err != nil {
			return model.MessageHandle{}, err
		}
	}
	m.nextID++
	m.published = append(m.published, msg)
	return model.MessageHandle{ChatID: -100, MessageID: m.nextID}, nil
}

func (m *mockPublisher) Edit(_ context.Context, h model.MessageHandle, msg bot.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editHook != nil {
		if err := m.editHook(h); err != nil {
			return err
		}
	}
	m.edits = append(m.edits, edit{handle: h, msg: msg})
	return nil
}

func (m *mockPublisher) publishedTitles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.published {
		out = append(out, titleOf(msg))
	}
	return out
}

func (m *mockPublisher) editCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edits)
}

// titleOf returns the bold first line of a rendered message.
func titleOf(msg bot.Message) string {
	line := msg.Text
	for i, r := range line {
		if r == '\n' {
			line = line[:i]
			break
		}
	}
	if len(line) >= 7 {
		return line[3 : len(line)-4]
	}
	return line
}

type report struct {
	where string
	err   error
}

type mockReporter struct {
	mu      sync.Mutex
	reports []report
}

func (m *mockReporter) Report(_ context.Context, where string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report{where: where, err: err})
}

func (m *mockReporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

var errStoreDown = errors.New("disk I/O error")

// flakyStore fails the next recordFailures Record calls.
type flakyStore struct {
	storage.Storage
	mu             sync.Mutex
	recordFailures int
	existsErr      error
}

func (s *flakyStore) Record(ctx context.Context, rec model.PostRecord) error {
	s.mu.Lock()
	if s.recordFailures > 0 {
		s.recordFailures--
		s.mu.Unlock()
		return errStoreDown
	}
	s.mu.Unlock()
	return s.Storage.Record(ctx, rec)
}

func (s *flakyStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Storage.Exists(ctx, id)
}

func story(id string, category model.Category, score int) model.Story {
	return model.Story{
		ID:       id,
		Category: category,
		Title:    "Story " + id,
		URL:      "https://example.com/" + id,
		Score:    score,
		Comments: score / 10,
	}
}

var lowThresholds = model.ThresholdConfig{
	model.CategoryDefault: 10,
	model.CategoryShow:    50,
	model.CategoryAsk:     100,
	model.CategoryJob:     model.Disabled,
}
