package service

import (
	"agent_trader/internal/models"
	"sync"
	"time"
)

const defaultFeedbackSize = 10

// ring: ограниченная история, новые записи вытесняют самые старые.
type ring struct {
	buf  []models.FeedbackEntry
	next int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]models.FeedbackEntry, size)}
}

func (r *ring) push(e models.FeedbackEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// newestFirst копирует содержимое от новых к старым.
func (r *ring) newestFirst() []models.FeedbackEntry {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]models.FeedbackEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Feedback: отказы, ошибки и успехи последних намерений. Решающий источник
// видит их на следующем цикле.
type Feedback struct {
	mu        sync.Mutex
	rejects   *ring
	errors    *ring
	successes *ring
	now       func() time.Time
}

func NewFeedback(size int) *Feedback {
	if size <= 0 {
		size = defaultFeedbackSize
	}
	return &Feedback{
		rejects:   newRing(size),
		errors:    newRing(size),
		successes: newRing(size),
		now:       time.Now,
	}
}

func (f *Feedback) entry(kind models.FeedbackKind, in models.OrderIntent, reason, detail string) models.FeedbackEntry {
	return models.FeedbackEntry{
		At:     f.now(),
		Kind:   kind,
		Type:   in.Type,
		Symbol: in.Symbol,
		Side:   in.Side,
		Reason: reason,
		Detail: detail,
	}
}

func (f *Feedback) Reject(in models.OrderIntent, reason, detail string) {
	f.mu.Lock()
	f.rejects.push(f.entry(models.FeedbackReject, in, reason, detail))
	f.mu.Unlock()
}

func (f *Feedback) Error(in models.OrderIntent, reason, detail string) {
	f.mu.Lock()
	f.errors.push(f.entry(models.FeedbackError, in, reason, detail))
	f.mu.Unlock()
}

func (f *Feedback) Success(in models.OrderIntent, orderID, detail string) {
	e := f.entry(models.FeedbackSuccess, in, "", detail)
	e.OrderID = orderID

	f.mu.Lock()
	f.successes.push(e)
	f.mu.Unlock()
}

func (f *Feedback) RecentRejects() []models.FeedbackEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejects.newestFirst()
}

func (f *Feedback) RecentErrors() []models.FeedbackEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.newestFirst()
}

func (f *Feedback) RecentSuccesses() []models.FeedbackEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.successes.newestFirst()
}

// Snapshot: все три кольца одним взятием блокировки.
func (f *Feedback) Snapshot() models.FeedbackSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.FeedbackSnapshot{
		Rejects:   f.rejects.newestFirst(),
		Errors:    f.errors.newestFirst(),
		Successes: f.successes.newestFirst(),
	}
}
