// Package postgreswrapper abstracts over the three database adapters in
// tests. The ADAPTER_TYPE environment variable selects pgx.pool (default),
// sql.db, or sqlx.db, so the whole engine test suite runs against each
// adapter unchanged.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/branchlib/lending-go/lending/postgresengine"
	"github.com/branchlib/lending-go/testutil/config"
)

const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper hands out the engine under test and cleans up its connections.
type Wrapper interface {
	GetEngine() *postgresengine.Engine
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	engine *postgresengine.Engine
}

func (w *PGXPoolWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db     *sql.DB
	engine *postgresengine.Engine
}

func (w *SQLDBWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // makes no sense to handle this
}

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db     *sqlx.DB
	engine *postgresengine.Engine
}

func (w *SQLXWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // makes no sense to handle this
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE
// and bootstraps the lending schema.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	wrapper := createWrapper(t, options...)

	err := wrapper.GetEngine().Bootstrap(context.Background())
	assert.NoError(t, err, "error bootstrapping the lending schema in test setup")

	return wrapper
}

func createWrapper(t testing.TB, options ...postgresengine.Option) Wrapper {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")

		engine, err := postgresengine.NewEngineFromPGXPool(connPool, options...)
		assert.NoError(t, err, "error creating the lending engine")

		return &PGXPoolWrapper{pool: connPool, engine: engine}

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		assert.NoError(t, err, "error creating the lending engine")

		return &SQLDBWrapper{db: db, engine: engine}

	case typeSQLXDB:
		db := config.PostgresSQLXTestConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		assert.NoError(t, err, "error creating the lending engine")

		return &SQLXWrapper{db: db, engine: engine}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}
}
