package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must gracefully accept nil (the
// non-transactional path).
type Tx interface{}

// NoTX marks call sites that intentionally run outside a transaction.
var NoTX Tx

// TransactionManager executes fn within a database transaction, passing the
// transaction handle through `tx` so use-case interfaces stay free of
// driver types.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
