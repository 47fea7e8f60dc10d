package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// TxManager выполняет fn в одной транзакции: commit при nil, rollback при ошибке или панике.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction: то, что нужно запросам на запись; его реализует pgx.Tx.
type Transaction interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}
