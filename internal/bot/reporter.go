package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

const (
	reportTTL      = time.Hour
	maxReportKeys  = 1000
	maxReportRunes = 1500
)

type directSender interface {
	SendDirect(ctx context.Context, chatID int64, text string) error
}

// AdminReporter DMs operational errors to the admins. The same error from
// the same place is sent at most once per hour.
type AdminReporter struct {
	sender directSender
	admins []int64
	clock  clockwork.Clock
	log    *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewAdminReporter creates a reporter. With no admins Report only logs.
func NewAdminReporter(sender directSender, admins []int64, clock clockwork.Clock, log *slog.Logger) *AdminReporter {
	return &AdminReporter{
		sender: sender,
		admins: admins,
		clock:  clock,
		log:    log,
		sent:   make(map[string]time.Time),
	}
}

// Report sends err to every admin unless it was reported recently.
func (r *AdminReporter) Report(ctx context.Context, where string, err error) {
	if err == nil || len(r.admins) == 0 {
		return
	}
	if !r.claim(where + "\n" + err.Error()) {
		return
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) > maxReportRunes {
		msg = string([]rune(msg)[:maxReportRunes])
	}
	text := fmt.Sprintf("<b>hntldr error</b>\n<b>Context:</b> %s\n<pre>%s</pre>",
		html.EscapeString(where), html.EscapeString(msg))

	for _, id := range r.admins {
		if sendErr := r.sender.SendDirect(ctx, id, text); sendErr != nil {
			r.log.Warn("notify admin", "admin_id", id, "error", sendErr)
		}
	}
}

// claim records key and reports whether it should be sent now.
func (r *AdminReporter) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for k, ts := range r.sent {
		if now.Sub(ts) > reportTTL {
			delete(r.sent, k)
		}
	}
	if _, ok := r.sent[key]; ok {
		return false
	}
	r.sent[key] = now

	if len(r.sent) > maxReportKeys {
		var oldest string
		var oldestAt time.Time
		for k, ts := range r.sent {
			if oldest == "" || ts.Before(oldestAt) {
				oldest, oldestAt = k, ts
			}
		}
		delete(r.sent, oldest)
	}
	return true
}
