package service

import (
	"agent_trader/pkg/logger"
	"context"
	"sync"
	"time"
)

// RateLimiter держит минимальный интервал между запросами к бирже.
// После отказа по лимиту (429 / 50011) в течение cooldownWindow интервал растёт до cooldownGap.
type RateLimiter struct {
	mu          sync.Mutex
	minGap      time.Duration
	window      time.Duration
	cooldownGap time.Duration

	next        time.Time // ближайший момент, когда можно слать следующий запрос
	lastLimited time.Time

	now func() time.Time
}

func NewRateLimiter(minGap, cooldownWindow, cooldownGap time.Duration) *RateLimiter {
	if minGap < 0 {
		minGap = 0
	}
	if cooldownGap < minGap {
		cooldownGap = minGap
	}
	return &RateLimiter{
		minGap:      minGap,
		window:      cooldownWindow,
		cooldownGap: cooldownGap,
		now:         time.Now,
	}
}

// Throttle блокирует до своего слота. Ошибок не возвращает: отменённый ctx просто прерывает ожидание.
func (r *RateLimiter) Throttle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[RATE] throttle panic: %v", rec)
		}
	}()

	r.mu.Lock()
	now := r.now()
	gap := r.minGap
	if !r.lastLimited.IsZero() && now.Sub(r.lastLimited) < r.window {
		gap = r.cooldownGap
	}

	start := now
	if r.next.After(start) {
		start = r.next
	}
	r.next = start.Add(gap)
	wait := start.Sub(now)
	r.mu.Unlock()

	if wait <= 0 {
		return
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// MarkRateLimited фиксирует отказ по лимиту; следующий слот сдвигается на cooldownGap.
func (r *RateLimiter) MarkRateLimited() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.lastLimited = now
	if until := now.Add(r.cooldownGap); r.next.Before(until) {
		r.next = until
	}
}

// CoolingDown: был ли отказ по лимиту в пределах окна.
func (r *RateLimiter) CoolingDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.lastLimited.IsZero() && r.now().Sub(r.lastLimited) < r.window
}
