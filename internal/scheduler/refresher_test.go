package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hntldr/internal/metrics"
	"hntldr/internal/model"
	"hntldr/internal/storage"
)

type refreshFixture struct {
	clock     *clockwork.FakeClock
	store     *storage.SQLite
	feed      *mockFeed
	pub       *mockPublisher
	metrics   *metrics.Metrics
	refresher *Refresher
}

func newRefreshFixture(t *testing.T, minDelta int) *refreshFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	f := &refreshFixture{
		clock:   clock,
		store:   newTestStore(t, clock),
		feed:    newMockFeed(),
		pub:     &mockPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.refresher = NewRefresher(Deps{
		Feed:      f.feed,
		Publisher: f.pub,
		Store:     f.store,
		Reporter:  &mockReporter{},
		Metrics:   f.metrics,
		Clock:     clock,
	}, RefreshConfig{
		Window:      3 * time.Hour,
		MinDelta:    minDelta,
		CallTimeout: time.Second,
	}, discard())
	return f
}

// posted records a story as published at postedAt with the given counts.
func (f *refreshFixture) posted(t *testing.T, id string, postedAt time.Time, score, comments int) model.PostRecord {
	t.Helper()
	rec := model.PostRecord{
		StoryID:       id,
		Handle:        model.MessageHandle{ChatID: -100, MessageID: len(id) + 10},
		Title:         "Story " + id,
		URL:           "https://example.com/" + id,
		Hook:          "Hook " + id + ".",
		Score:         score,
		Comments:      comments,
		FirstPostedAt: postedAt,
	}
	if err := f.store.Record(context.Background(), rec); err != nil {
		t.Fatalf("record %s: %v", id, err)
	}
	got, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return *got
}

func (f *refreshFixture) live(id string, score, comments int) {
	f.feed.setStory(model.Story{ID: id, Title: "Story " + id, Score: score, Comments: comments})
}

func (f *refreshFixture) get(t *testing.T, id string) model.PostRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return *rec
}

func TestRefreshBelowThresholdMakesNoEdit(t *testing.T) {
	f := newRefreshFixture(t, 10)
	before := f.posted(t, "a", epoch.Add(-time.Hour), 100, 20)
	f.live("a", 109, 29)
	f.clock.Advance(time.Minute)

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if f.pub.editCount() != 0 {
		t.Errorf("issued %d edits", f.pub.editCount())
	}
	if diff := cmp.Diff(before, f.get(t, "a")); diff != "" {
		t.Errorf("record changed (-want +got):\n%s", diff)
	}
	if stats.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", stats.Unchanged)
	}
}

func TestRefreshEditsAndTouches(t *testing.T) {
	f := newRefreshFixture(t, 10)
	before := f.posted(t, "a", epoch.Add(-time.Hour), 100, 20)
	f.live("a", 100, 35)
	f.clock.Advance(5 * time.Minute)

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Edited != 1 {
		t.Fatalf("Edited = %d, want 1", stats.Edited)
	}

	e := f.pub.edits[0]
	if e.handle != before.Handle {
		t.Errorf("edited %+v, want %+v", e.handle, before.Handle)
	}
	for _, want := range []string{"<b>Story a</b>", "Hook a.", "<b>100 points</b>"} {
		if !strings.Contains(e.msg.Text, want) {
			t.Errorf("edit text missing %q:\n%s", want, e.msg.Text)
		}
	}
	if e.msg.Buttons[1].Text != "35 Comments" {
		t.Errorf("comments button = %q", e.msg.Buttons[1].Text)
	}

	want := before
	want.Comments = 35
	want.LastRefreshedAt = epoch.Add(5 * time.Minute)
	if diff := cmp.Diff(want, f.get(t, "a")); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(f.metrics.MessagesEdited); got != 1 {
		t.Errorf("messages_edited_total = %v", got)
	}
}

func TestRefreshScoreDropAlsoCounts(t *testing.T) {
	f := newRefreshFixture(t, 5)
	f.posted(t, "a", epoch.Add(-time.Hour), 100, 10)
	f.live("a", 90, 10)

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Edited != 1 || f.get(t, "a").Score != 90 {
		t.Errorf("score drop not applied: %+v", stats)
	}
}

func TestRefreshEditFailureLeavesRecord(t *testing.T) {
	f := newRefreshFixture(t, 1)
	before := f.posted(t, "a", epoch.Add(-time.Hour), 100, 20)
	f.live("a", 150, 40)
	f.pub.editHook = func(model.MessageHandle) error {
		return errors.New("Bad Request: message to edit not found")
	}

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Failed != 1 || stats.Edited != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if diff := cmp.Diff(before, f.get(t, "a")); diff != "" {
		t.Errorf("record changed after failed edit (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(f.metrics.EditFailures); got != 1 {
		t.Errorf("edit_failures_total = %v", got)
	}

	// Retried next cycle.
	f.pub.mu.Lock()
	f.pub.editHook = nil
	f.pub.mu.Unlock()
	stats, err = f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Edited != 1 {
		t.Errorf("Edited = %d on retry, want 1", stats.Edited)
	}
}

func TestRefreshOnlyWithinWindow(t *testing.T) {
	f := newRefreshFixture(t, 1)
	f.posted(t, "recent", epoch.Add(-2*time.Hour), 100, 10)
	f.posted(t, "old", epoch.Add(-4*time.Hour), 100, 10)
	f.live("recent", 200, 20)
	f.live("old", 200, 20)

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Recent != 1 || stats.Edited != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if diff := cmp.Diff([]string{"recent"}, f.feed.fetchedIDs()); diff != "" {
		t.Errorf("fetched mismatch (-want +got):\n%s", diff)
	}
	if f.get(t, "old").Score != 100 {
		t.Error("story outside the window was touched")
	}
}

func TestRefreshSkipsFetchFailures(t *testing.T) {
	f := newRefreshFixture(t, 1)
	f.posted(t, "gone", epoch.Add(-time.Hour), 100, 10)
	f.posted(t, "flaky", epoch.Add(-time.Hour), 100, 10)
	f.posted(t, "ok", epoch.Add(-time.Hour), 100, 10)
	f.feed.errs["flaky"] = errors.New("timeout")
	f.live("ok", 150, 10)

	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	want := RefreshStats{Recent: 3, Fetched: 1, Edited: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshNeverCreatesRecords(t *testing.T) {
	f := newRefreshFixture(t, 1)
	f.posted(t, "a", epoch.Add(-time.Hour), 100, 10)
	f.live("a", 300, 30)
	f.live("unposted", 900, 90)

	if _, err := f.refresher.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	ok, err := f.store.Exists(context.Background(), "unposted")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("refresh created a record")
	}
	recs, err := f.store.RecentlyPosted(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("store holds %d records, want 1", len(recs))
	}
}

func TestRefreshEmptyWindow(t *testing.T) {
	f := newRefreshFixture(t, 1)
	stats, err := f.refresher.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if diff := cmp.Diff(RefreshStats{}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshShutdownStopsBetweenEdits(t *testing.T) {
	f := newRefreshFixture(t, 1)
	f.posted(t, "a", epoch.Add(-2*time.Hour), 100, 10)
	f.posted(t, "b", epoch.Add(-time.Hour), 100, 10)
	f.live("a", 200, 10)
	f.live("b", 200, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pub.editHook = func(model.MessageHandle) error {
		cancel()
		return nil
	}

	stats, err := f.refresher.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if stats.Edited != 1 {
		t.Errorf("Edited = %d, want 1", stats.Edited)
	}
	if f.get(t, "a").Score != 200 {
		t.Error("edited story was not touched")
	}
	if f.get(t, "b").Score != 100 {
		t.Error("second story was edited after shutdown")
	}
}
