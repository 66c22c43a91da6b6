package helper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/branchlib/lending-go/lending"
	"github.com/branchlib/lending-go/lending/postgresengine"
	"github.com/branchlib/lending-go/testutil/config"
)

// LoanRow mirrors one row of the loans table for direct inspection in tests.
type LoanRow struct {
	ISBN       string
	CardID     string
	DateOpened time.Time
	DueDate    time.Time
	DateClosed *time.Time
}

func NewTestConnPool(t testing.TB) *pgxpool.Pool {
	connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
	assert.NoError(t, err, "error connecting to DB pool in test setup")

	return connPool
}

func GivenUniqueISBN(t testing.TB) lending.BookID {
	return fmt.Sprintf("978%09d%d", rand.IntN(1_000_000_000), rand.IntN(10))
}

func GivenUniqueNaturalID(t testing.TB) string {
	naturalID, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return naturalID.String()
}

func CleanUpLendingTables(t testing.TB, connPool *pgxpool.Pool) {
	_, err := connPool.Exec(
		context.Background(),
		`truncate fines, loans, book_authors, authors, borrowers, books restart identity cascade`,
	)
	assert.NoError(t, err, "error in cleaning up lending tables")
}

func GivenBookInCatalog(t testing.TB, ctx context.Context, connPool *pgxpool.Pool, isbn lending.BookID, title string) {
	_, err := connPool.Exec(
		ctx,
		`insert into books (isbn, title) values ($1, $2)`,
		isbn, title,
	)
	assert.NoError(t, err, "error in arranging test data")
}

func GivenAuthorOfBook(t testing.TB, ctx context.Context, connPool *pgxpool.Pool, isbn lending.BookID, authorName string) {
	row := connPool.QueryRow(
		ctx,
		`insert into authors (name) values ($1) returning id`,
		authorName,
	)

	var authorID int64
	err := row.Scan(&authorID)
	assert.NoError(t, err, "error in arranging test data")

	_, err = connPool.Exec(
		ctx,
		`insert into book_authors (isbn, author_id) values ($1, $2)`,
		isbn, authorID,
	)
	assert.NoError(t, err, "error in arranging test data")
}

func GivenRegisteredBorrower(t testing.TB, ctx context.Context, engine *postgresengine.Engine, name string) lending.CardID {
	cardID, err := engine.RegisterBorrower(ctx, GivenUniqueNaturalID(t), name, "42 Shelf Lane", "555-0100")
	assert.NoError(t, err, "error in arranging test data")

	return cardID
}

func GivenOpenLoan(
	t testing.TB,
	ctx context.Context,
	engine *postgresengine.Engine,
	isbn lending.BookID,
	cardID lending.CardID,
	today time.Time,
) lending.LoanID {

	loanID, err := engine.Checkout(ctx, isbn, cardID, today)
	assert.NoError(t, err, "error in arranging test data")

	return loanID
}

func QueryLoan(t testing.TB, connPool *pgxpool.Pool, loanID lending.LoanID) LoanRow {
	row := connPool.QueryRow(
		context.Background(),
		`select isbn, card_id, date_opened, due_date, date_closed from loans where id = $1`,
		loanID,
	)

	var loan LoanRow
	err := row.Scan(&loan.ISBN, &loan.CardID, &loan.DateOpened, &loan.DueDate, &loan.DateClosed)
	assert.NoError(t, err, "error in querying loan row")

	return loan
}

func QueryFine(t testing.TB, connPool *pgxpool.Pool, loanID lending.LoanID) (amount float64, paid bool, found bool) {
	rows, err := connPool.Query(
		context.Background(),
		`select amount, paid from fines where loan_id = $1`,
		loanID,
	)
	assert.NoError(t, err, "error in querying fine row")
	defer rows.Close()

	if !rows.Next() {
		return 0, false, false
	}

	err = rows.Scan(&amount, &paid)
	assert.NoError(t, err, "error in scanning fine row")

	return amount, paid, true
}

func CountOpenLoans(t testing.TB, connPool *pgxpool.Pool, cardID lending.CardID) int64 {
	row := connPool.QueryRow(
		context.Background(),
		`select count(*) from loans where card_id = $1 and date_closed is null`,
		cardID,
	)

	var count int64
	err := row.Scan(&count)
	assert.NoError(t, err, "error in counting open loans")

	return count
}
