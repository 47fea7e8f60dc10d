package pg

import (
	"agent_trader/internal/models"
	"agent_trader/pkg/db"
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

const createTrades = `
CREATE TABLE IF NOT EXISTS trades (
    trade_id    TEXT PRIMARY KEY,
    symbol      TEXT        NOT NULL,
    side        TEXT        NOT NULL,
    status      TEXT        NOT NULL,
    opened_at   TIMESTAMPTZ NOT NULL,
    closed_at   TIMESTAMPTZ,
    exit_type   TEXT,
    pnl_usd     DOUBLE PRECISION,
    payload     JSONB       NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS trades_symbol_status_idx ON trades (symbol, status);
`

const upsertTrade = `
INSERT INTO trades (trade_id, symbol, side, status, opened_at, closed_at, exit_type, pnl_usd, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, now())
ON CONFLICT (trade_id) DO UPDATE SET
    status     = EXCLUDED.status,
    closed_at  = EXCLUDED.closed_at,
    exit_type  = EXCLUDED.exit_type,
    pnl_usd    = EXCLUDED.pnl_usd,
    payload    = EXCLUDED.payload,
    updated_at = now()
`

// Trades: запросы к таблице trades.
type Trades struct{}

// New instance
func New() *Trades {
	return &Trades{}
}

func (q *Trades) EnsureSchema(ctx context.Context, tx db.Transaction) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Trades.EnsureSchema: %w", err)
		}
	}()
	_, err = tx.Exec(ctx, createTrades)
	return err
}

func (q *Trades) Upsert(ctx context.Context, tx db.Transaction, t *models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Trades.Upsert: %w", err)
		}
	}()

	var data []byte
	data, err = sonic.Marshal(t)
	if err != nil {
		return err
	}

	var (
		closedAt any
		exitType any
		pnlUSD   any
	)
	if t.Exit != nil {
		closedAt = t.Exit.Timestamp
		exitType = string(t.Exit.Type)
	}
	if t.Result != nil {
		pnlUSD = t.Result.PnLUSD
	}

	_, err = tx.Exec(ctx, upsertTrade,
		t.ID,
		t.Symbol,
		string(t.Side),
		string(t.Status),
		t.Entry.Timestamp,
		closedAt,
		exitType,
		pnlUSD,
		string(data),
	)
	return err
}
