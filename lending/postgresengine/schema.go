package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/branchlib/lending-go/lending"
)

const opBootstrap = "bootstrap"

// createTableStatements holds the persisted state layout: five relations
// plus the book-author association. Fines cascade on loan deletion; the
// partial unique index enforces at most one open loan per book, and the
// unique natural id enforces one borrower per identity.
var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
		isbn  VARCHAR(20)  NOT NULL PRIMARY KEY,
		title VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authors (
		id   INTEGER      GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS book_authors (
		author_id INTEGER     NOT NULL REFERENCES authors (id),
		isbn      VARCHAR(20) NOT NULL REFERENCES books (isbn),
		PRIMARY KEY (author_id, isbn)
	)`,
	`CREATE TABLE IF NOT EXISTS borrowers (
		card_id    VARCHAR(20)  NOT NULL PRIMARY KEY,
		natural_id VARCHAR(64)  NOT NULL UNIQUE,
		name       VARCHAR(255) NOT NULL,
		address    VARCHAR(255) NOT NULL,
		phone      VARCHAR(20)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		isbn        VARCHAR(20) NOT NULL REFERENCES books (isbn),
		card_id     VARCHAR(20) NOT NULL REFERENCES borrowers (card_id),
		date_opened DATE        NOT NULL,
		due_date    DATE        NOT NULL,
		date_closed DATE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_open_per_book
		ON loans (isbn) WHERE date_closed IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_loans_card_id ON loans (card_id)`,
	`CREATE TABLE IF NOT EXISTS fines (
		loan_id BIGINT         NOT NULL PRIMARY KEY REFERENCES loans (id) ON DELETE CASCADE,
		amount  NUMERIC(10, 2) NOT NULL,
		paid    BOOLEAN        NOT NULL DEFAULT FALSE
	)`,
}

// Bootstrap creates the lending schema if it does not exist yet. It is
// idempotent and safe to run at every startup; seeding initial data is the
// bulk loader's job (cmd/importdata).
func (e *Engine) Bootstrap(ctx context.Context) error {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBootstrap, nil)

	err := e.bootstrap(ctx)
	e.observeOperation(ctx, span, opBootstrap, time.Since(start), err)

	return err
}

func (e *Engine) bootstrap(ctx context.Context) error {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return err
	}
	defer e.rollbackTx(ctx, tx)

	for _, statement := range createTableStatements {
		start := time.Now()
		_, execErr := tx.Exec(ctx, statement)
		e.logDebugSQL(ctx, statement, time.Since(start))

		if execErr != nil {
			return errors.Join(lending.ErrExecutingStoreFailed, execErr)
		}
	}

	return e.commitTx(ctx, tx)
}
