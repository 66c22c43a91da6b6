package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/branchlib/lending-go/lending"
	"github.com/branchlib/lending-go/lending/postgresengine/internal/adapters"
)

const (
	dialectPostgres = "postgres"
	dateLayout      = "2006-01-02"
	castDate        = "?::date"

	tableBooks       = "books"
	tableAuthors     = "authors"
	tableBookAuthors = "book_authors"
	tableBorrowers   = "borrowers"
	tableLoans       = "loans"
	tableFines       = "fines"

	colISBN       = "isbn"
	colTitle      = "title"
	colCardID     = "card_id"
	colNaturalID  = "natural_id"
	colName       = "name"
	colAddress    = "address"
	colPhone      = "phone"
	colLoanID     = "id"
	colDateOpened = "date_opened"
	colDueDate    = "due_date"
	colDateClosed = "date_closed"
	colFineLoanID = "loan_id"
	colAmount     = "amount"
	colPaid       = "paid"

	advisoryKeyCardAllocation = "lending/card-allocation"
	advisoryKeyBorrowerPrefix = "lending/borrower/"
	advisoryKeyBookPrefix     = "lending/book/"
)

type sqlQueryString = string

// Engine executes all lending operations against a PostgreSQL store.
// It holds no domain state between calls; the zero value is not usable,
// construct it with one of the NewEngineFrom... functions.
type Engine struct {
	db               adapters.DBAdapter
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewEngineFromPGXPool creates a new Engine using a pgx connection pool
// with optional configuration.
func NewEngineFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Engine, error) {
	if pool == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(pool), options...)
}

// NewEngineFromSQLDB creates a new Engine using a database/sql handle
// with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx handle
// with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, lending.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	engine := &Engine{db: db}

	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// dateValue renders a calendar date as a ::date literal for goqu.
func dateValue(t time.Time) goqu.Expression {
	return goqu.L(castDate, lending.DateOf(t).Format(dateLayout))
}

func toSQL(ds interface{ ToSQL() (string, []interface{}, error) }) (sqlQueryString, error) {
	sqlQuery, _, err := ds.ToSQL()
	if err != nil {
		return "", errors.Join(lending.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

// beginTx starts a transaction, wrapping driver errors.
func (e *Engine) beginTx(ctx context.Context) (adapters.DBTx, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return nil, errors.Join(lending.ErrBeginningTxFailed, err)
	}

	return tx, nil
}

// rollbackTx rolls back silently; rollback after commit is a no-op in the adapters.
func (e *Engine) rollbackTx(ctx context.Context, tx adapters.DBTx) {
	if err := tx.Rollback(ctx); err != nil {
		e.logWarn(ctx, logMsgRollbackFailed, logAttrError, err.Error())
	}
}

func (e *Engine) commitTx(ctx context.Context, tx adapters.DBTx) error {
	if err := tx.Commit(ctx); err != nil {
		return errors.Join(lending.ErrCommittingTxFailed, err)
	}

	return nil
}

// acquireAdvisoryLock serializes concurrent check-then-act sequences on the
// same entity. The lock is transaction-scoped and released on commit/rollback.
func (e *Engine) acquireAdvisoryLock(ctx context.Context, tx adapters.DBTx, key string) error {
	sqlQuery, buildErr := toSQL(builder().Select(goqu.L("pg_advisory_xact_lock(hashtext(?))", key)))
	if buildErr != nil {
		return buildErr
	}

	rows, queryErr := tx.Query(ctx, sqlQuery)
	if queryErr != nil {
		return errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}

	return e.closeRows(ctx, rows)
}

// queryCount runs a single-value count query on the given querier.
func (e *Engine) queryCount(ctx context.Context, q adapters.Querier, ds *goqu.SelectDataset) (int64, error) {
	sqlQuery, buildErr := toSQL(ds)
	if buildErr != nil {
		return 0, buildErr
	}

	start := time.Now()
	rows, queryErr := q.Query(ctx, sqlQuery)
	e.logDebugSQL(ctx, sqlQuery, time.Since(start))

	if queryErr != nil {
		return 0, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer func() { _ = e.closeRows(ctx, rows) }()

	var count int64
	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			return 0, errors.Join(lending.ErrScanningRowFailed, scanErr)
		}
	}

	return count, nil
}

// execStatement executes a mutating statement on the given querier/executor
// and returns the affected row count.
func (e *Engine) execStatement(
	ctx context.Context,
	execFn func(context.Context, string) (adapters.DBResult, error),
	ds interface{ ToSQL() (string, []interface{}, error) },
) (int64, error) {

	sqlQuery, buildErr := toSQL(ds)
	if buildErr != nil {
		return 0, buildErr
	}

	start := time.Now()
	result, execErr := execFn(ctx, sqlQuery)
	e.logDebugSQL(ctx, sqlQuery, time.Since(start))

	if execErr != nil {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, rowsErr)
	}

	return rowsAffected, nil
}

func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) error {
	if err := rows.Close(); err != nil {
		e.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, err.Error())
		return errors.Join(lending.ErrQueryingStoreFailed, err)
	}

	return nil
}
