package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Category names a rate-limited action.
type Category string

const (
	CategoryPixel   Category = "pixel"
	CategoryComment Category = "comment"
)

// Span is one cooldown window. Ends is always after Started.
type Span struct {
	Started time.Time
	Ends    time.Time
}

// TimeoutStatus describes an active span as of CheckedAt.
type TimeoutStatus struct {
	RemainingMS int64     `json:"remaining_ms"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	EndsAt      time.Time `json:"ends_at"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Timeouts tracks per-identity cooldowns by category.
//
// EXPIRY:
// A span stops counting the instant its end passes. Status deletes an expired
// span it happens to read (lazy), and Sweep or Run deletes the rest (active).
// Neither is needed for correctness, they only bound memory.
type Timeouts struct {
	mu    sync.Mutex
	spans map[Category]map[string]Span
	now   func() time.Time

	logger *slog.Logger
}

func NewTimeouts(logger *slog.Logger) *Timeouts {
	return NewTimeoutsWithClock(logger, time.Now)
}

// NewTimeoutsWithClock is NewTimeouts with an injectable clock for tests.
func NewTimeoutsWithClock(logger *slog.Logger, now func() time.Time) *Timeouts {
	return &Timeouts{
		spans:  make(map[Category]map[string]Span),
		now:    now,
		logger: logger,
	}
}

// Begin starts or overwrites the span for (cat, subjectID). A non-positive
// duration clears any existing span instead, since an empty span is no span.
func (t *Timeouts) Begin(cat Category, subjectID string, d time.Duration) (Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d <= 0 {
		t.deleteLocked(cat, subjectID)
		return Span{}, false
	}

	now := t.now()
	span := Span{Started: now, Ends: now.Add(d)}
	byID, ok := t.spans[cat]
	if !ok {
		byID = make(map[string]Span)
		t.spans[cat] = byID
	}
	byID[subjectID] = span
	return span, true
}

// TryBegin starts a span only if none is active, in one critical section.
// When a span is already active it returns that span's status and false.
func (t *Timeouts) TryBegin(cat Category, subjectID string, d time.Duration) (TimeoutStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if span, ok := t.spans[cat][subjectID]; ok {
		if span.Ends.After(now) {
			return statusOf(span, now), false
		}
		t.deleteLocked(cat, subjectID)
	}
	if d <= 0 {
		return TimeoutStatus{}, true
	}

	byID, ok := t.spans[cat]
	if !ok {
		byID = make(map[string]Span)
		t.spans[cat] = byID
	}
	byID[subjectID] = Span{Started: now, Ends: now.Add(d)}
	return TimeoutStatus{}, true
}

// Status reports the active span, deleting it instead if it has expired.
func (t *Timeouts) Status(cat Category, subjectID string) (TimeoutStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	span, ok := t.spans[cat][subjectID]
	if !ok {
		return TimeoutStatus{}, false
	}

	now := t.now()
	if !span.Ends.After(now) {
		t.deleteLocked(cat, subjectID)
		return TimeoutStatus{}, false
	}

	return statusOf(span, now), true
}

func statusOf(span Span, now time.Time) TimeoutStatus {
	return TimeoutStatus{
		RemainingMS: span.Ends.Sub(now).Milliseconds(),
		ElapsedMS:   now.Sub(span.Started).Milliseconds(),
		EndsAt:      span.Ends,
		CheckedAt:   now,
	}
}

// Clear deletes the span for (cat, subjectID) if there is one.
func (t *Timeouts) Clear(cat Category, subjectID string) {
	t.mu.Lock()
	t.deleteLocked(cat, subjectID)
	t.mu.Unlock()
}

// Sweep deletes every expired span across all categories and returns how many it removed.
func (t *Timeouts) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for cat, byID := range t.spans {
		for id, span := range byID {
			if !span.Ends.After(now) {
				delete(byID, id)
				removed++
			}
		}
		if len(byID) == 0 {
			delete(t.spans, cat)
		}
	}
	return removed
}

// Len counts stored spans, expired or not.
func (t *Timeouts) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byID := range t.spans {
		n += len(byID)
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (t *Timeouts) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("timeout sweeper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("timeout sweeper stopped")
			return nil
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("expired timeouts swept", slog.Int("removed", n))
			}
		}
	}
}

func (t *Timeouts) deleteLocked(cat Category, subjectID string) {
	byID, ok := t.spans[cat]
	if !ok {
		return
	}
	delete(byID, subjectID)
	if len(byID) == 0 {
		delete(t.spans, cat)
	}
}
