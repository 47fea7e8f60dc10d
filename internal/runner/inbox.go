package runner

import (
	"agent_trader/internal/models"
	"errors"
)

// ErrInboxFull: очередь переполнена, намерение не принято.
var ErrInboxFull = errors.New("intent inbox is full")

// Inbox: ограниченная очередь намерений от внешних каналов (телеграм, HTTP).
// Цикл тиков забирает всё, что накопилось, в порядке поступления.
type Inbox struct {
	ch chan models.OrderIntent
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 32
	}
	return &Inbox{ch: make(chan models.OrderIntent, size)}
}

// Submit кладёт намерения без блокировки. Возвращает, сколько принято;
// на первом непоместившемся, ErrInboxFull.
func (b *Inbox) Submit(intents ...models.OrderIntent) (int, error) {
	for i, in := range intents {
		select {
		case b.ch <- in:
		default:
			return i, ErrInboxFull
		}
	}
	return len(intents), nil
}

// Drain забирает всё накопленное, не дожидаясь новых.
func (b *Inbox) Drain() []models.OrderIntent {
	out := make([]models.OrderIntent, 0, len(b.ch))
	for {
		select {
		case in := <-b.ch:
			out = append(out, in)
		default:
			return out
		}
	}
}

func (b *Inbox) Len() int { return len(b.ch) }

func (b *Inbox) Cap() int { return cap(b.ch) }
