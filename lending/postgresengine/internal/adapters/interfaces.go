package adapters

import "context"

// DBAdapter defines the database operations needed by the lending engine.
// Reads may run outside a transaction; every mutating operation begins one.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx is one open transaction. Rollback after a successful Commit must be
// a no-op, so callers can always `defer Rollback`.
type DBTx interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Querier is the read surface shared by DBAdapter and DBTx.
type Querier interface {
	Query(ctx context.Context, query string) (DBRows, error)
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
