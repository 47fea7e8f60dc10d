package service

import (
	"agent_trader/internal/models"
	"agent_trader/internal/modules/journal/service/pg"
	"agent_trader/pkg/db"
	"context"
	"fmt"
)

// PgMirror дублирует изменённые сделки в Postgres для отчётов и выгрузки.
type PgMirror struct {
	db     db.TxManager
	trades *pg.Trades
}

var _ Mirror = (*PgMirror)(nil)

func NewPgMirror(tx db.TxManager) *PgMirror {
	return &PgMirror{
		db:     tx,
		trades: pg.New(),
	}
}

// Init создаёт таблицу, если её нет.
func (m *PgMirror) Init(ctx context.Context) error {
	return m.db.InTx(ctx, func(ctx context.Context, tx db.Transaction) error {
		return m.trades.EnsureSchema(ctx, tx)
	})
}

func (m *PgMirror) Upsert(ctx context.Context, t *models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Upsert %s: %w", t.ID, err)
		}
	}()
	return m.db.InTx(ctx, func(ctx context.Context, tx db.Transaction) error {
		return m.trades.Upsert(ctx, tx, t)
	})
}
