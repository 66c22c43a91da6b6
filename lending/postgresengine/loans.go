package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/branchlib/lending-go/lending"
	"github.com/branchlib/lending-go/lending/postgresengine/internal/adapters"
)

const (
	opCheckout        = "checkout"
	opCheckin         = "checkin"
	opCheckinBatch    = "checkin_batch"
	opLoanByID        = "loan_by_id"
	opFindActiveLoans = "find_active_loans"

	maxActiveLoansPerBorrower = 3
)

// Checkout opens a new loan of the given book to the given borrower and
// returns the generated loan id. The due date is fixed at today plus the
// loan period and never recomputed.
//
// Preconditions, each with its own failure kind, checked in order:
//  1. borrower exists                      -> lending.ErrBorrowerNotFound
//  2. borrower has no unpaid fines         -> lending.ErrUnpaidFines
//  3. borrower has fewer than 3 open loans -> lending.ErrMaxActiveLoans
//  4. book has no open loan                -> lending.ErrBookUnavailable
//  5. book exists in the catalog           -> lending.ErrBookNotFound
//
// All checks and the insert run in one transaction, serialized per borrower
// and per book with advisory locks; a partial unique index on open loans per
// book backs invariant 4 at the schema level.
func (e *Engine) Checkout(
	ctx context.Context,
	isbn lending.BookID,
	cardID lending.CardID,
	today time.Time,
) (lending.LoanID, error) {

	start := time.Now()
	ctx, span := e.startSpan(ctx, opCheckout, map[string]string{spanAttrBook: isbn, spanAttrBorrower: cardID})

	loanID, err := e.checkout(ctx, isbn, cardID, lending.DateOf(today))
	e.observeOperation(ctx, span, opCheckout, time.Since(start), err)

	return loanID, err
}

func (e *Engine) checkout(
	ctx context.Context,
	isbn lending.BookID,
	cardID lending.CardID,
	today time.Time,
) (lending.LoanID, error) {

	tx, err := e.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer e.rollbackTx(ctx, tx)

	if err = e.acquireAdvisoryLock(ctx, tx, advisoryKeyBorrowerPrefix+cardID); err != nil {
		return 0, err
	}

	if err = e.acquireAdvisoryLock(ctx, tx, advisoryKeyBookPrefix+isbn); err != nil {
		return 0, err
	}

	if err = e.checkCheckoutPreconditions(ctx, tx, isbn, cardID); err != nil {
		return 0, err
	}

	loanID, err := e.insertLoan(ctx, tx, isbn, cardID, today)
	if err != nil {
		return 0, err
	}

	if err = e.commitTx(ctx, tx); err != nil {
		return 0, err
	}

	return loanID, nil
}

func (e *Engine) checkCheckoutPreconditions(
	ctx context.Context,
	tx adapters.DBTx,
	isbn lending.BookID,
	cardID lending.CardID,
) error {

	borrowers, err := e.queryCount(ctx, tx, builder().
		From(tableBorrowers).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colCardID: cardID}))
	if err != nil {
		return err
	}

	if borrowers == 0 {
		return lending.ErrBorrowerNotFound
	}

	// unpaid fines block checkouts regardless of whether the fined loan is
	// still open or already closed
	unpaidFines, err := e.queryCount(ctx, tx, builder().
		From(goqu.T(tableLoans).As("l")).
		InnerJoin(
			goqu.T(tableFines).As("f"),
			goqu.On(goqu.I("f.loan_id").Eq(goqu.I("l.id"))),
		).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.I("l.card_id").Eq(cardID),
			goqu.I("f.paid").IsFalse(),
		))
	if err != nil {
		return err
	}

	if unpaidFines > 0 {
		return lending.ErrUnpaidFines
	}

	openLoans, err := e.queryCount(ctx, tx, builder().
		From(tableLoans).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colCardID:     cardID,
			colDateClosed: nil,
		}))
	if err != nil {
		return err
	}

	if openLoans >= maxActiveLoansPerBorrower {
		return lending.ErrMaxActiveLoans
	}

	openForBook, err := e.queryCount(ctx, tx, openLoansForBook(isbn))
	if err != nil {
		return err
	}

	if openForBook > 0 {
		return lending.ErrBookUnavailable
	}

	books, err := e.queryCount(ctx, tx, builder().
		From(tableBooks).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colISBN: isbn}))
	if err != nil {
		return err
	}

	if books == 0 {
		return lending.ErrBookNotFound
	}

	return nil
}

func (e *Engine) insertLoan(
	ctx context.Context,
	tx adapters.DBTx,
	isbn lending.BookID,
	cardID lending.CardID,
	today time.Time,
) (lending.LoanID, error) {

	insertStmt := builder().
		Insert(tableLoans).
		Rows(goqu.Record{
			colISBN:       isbn,
			colCardID:     cardID,
			colDateOpened: dateValue(today),
			colDueDate:    dateValue(lending.DueDateFor(today)),
			colDateClosed: nil,
		}).
		Returning(colLoanID)

	sqlQuery, buildErr := toSQL(insertStmt)
	if buildErr != nil {
		return 0, buildErr
	}

	start := time.Now()
	rows, execErr := tx.Query(ctx, sqlQuery)
	e.logDebugSQL(ctx, sqlQuery, time.Since(start))

	if execErr != nil {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, execErr)
	}
	defer func() { _ = e.closeRows(ctx, rows) }()

	if !rows.Next() {
		return 0, errors.Join(lending.ErrExecutingStoreFailed, errors.New("insert returned no loan id"))
	}

	var loanID lending.LoanID
	if scanErr := rows.Scan(&loanID); scanErr != nil {
		return 0, errors.Join(lending.ErrScanningRowFailed, scanErr)
	}

	return loanID, nil
}

// Checkin closes the given loan. A loan that does not exist or is already
// closed is rejected with lending.ErrLoanNotFoundOrClosed; re-check-in is
// not a no-op.
func (e *Engine) Checkin(ctx context.Context, loanID lending.LoanID, today time.Time) error {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opCheckin, map[string]string{spanAttrLoan: strconv.FormatInt(loanID, 10)})

	err := e.checkin(ctx, loanID, lending.DateOf(today))
	e.observeOperation(ctx, span, opCheckin, time.Since(start), err)

	return err
}

func (e *Engine) checkin(ctx context.Context, loanID lending.LoanID, today time.Time) error {
	rowsAffected, err := e.execStatement(ctx, e.db.Exec, builder().
		Update(tableLoans).
		Set(goqu.Record{colDateClosed: dateValue(today)}).
		Where(
			goqu.C(colLoanID).Eq(loanID),
			goqu.C(colDateClosed).IsNull(),
		))
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return lending.ErrLoanNotFoundOrClosed
	}

	return nil
}

// CheckinBatch closes every open loan in loanIDs in one statement and
// returns the number of loans actually closed. Ids that do not correspond
// to an open loan are silently skipped; this deliberately differs from
// Checkin, which rejects them.
func (e *Engine) CheckinBatch(ctx context.Context, loanIDs []lending.LoanID, today time.Time) (int64, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opCheckinBatch, nil)

	closed, err := e.checkinBatch(ctx, loanIDs, lending.DateOf(today))
	e.observeOperation(ctx, span, opCheckinBatch, time.Since(start), err)

	return closed, err
}

func (e *Engine) checkinBatch(ctx context.Context, loanIDs []lending.LoanID, today time.Time) (int64, error) {
	if len(loanIDs) == 0 {
		return 0, nil
	}

	ids := make([]any, len(loanIDs))
	for i, id := range loanIDs {
		ids[i] = id
	}

	return e.execStatement(ctx, e.db.Exec, builder().
		Update(tableLoans).
		Set(goqu.Record{colDateClosed: dateValue(today)}).
		Where(
			goqu.C(colLoanID).In(ids...),
			goqu.C(colDateClosed).IsNull(),
		))
}

// LoanByID returns the loan with the given id, open or closed, or
// lending.ErrLoanNotFound.
func (e *Engine) LoanByID(ctx context.Context, loanID lending.LoanID) (lending.Loan, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opLoanByID, map[string]string{spanAttrLoan: strconv.FormatInt(loanID, 10)})

	loan, err := e.queryLoan(ctx, loanID)
	e.observeOperation(ctx, span, opLoanByID, time.Since(start), err)

	return loan, err
}

func (e *Engine) queryLoan(ctx context.Context, loanID lending.LoanID) (lending.Loan, error) {
	var empty lending.Loan

	sqlQuery, buildErr := toSQL(builder().
		From(tableLoans).
		Select(colLoanID, colISBN, colCardID, colDateOpened, colDueDate, colDateClosed).
		Where(goqu.C(colLoanID).Eq(loanID)))
	if buildErr != nil {
		return empty, buildErr
	}

	start := time.Now()
	rows, queryErr := e.db.Query(ctx, sqlQuery)
	e.logDebugSQL(ctx, sqlQuery, time.Since(start))

	if queryErr != nil {
		return empty, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer func() { _ = e.closeRows(ctx, rows) }()

	if !rows.Next() {
		return empty, lending.ErrLoanNotFound
	}

	var loan lending.Loan
	var dateClosed sql.NullTime

	if scanErr := rows.Scan(
		&loan.ID,
		&loan.ISBN,
		&loan.CardID,
		&loan.DateOpened,
		&loan.DueDate,
		&dateClosed,
	); scanErr != nil {
		return empty, errors.Join(lending.ErrScanningRowFailed, scanErr)
	}

	if dateClosed.Valid {
		closed := dateClosed.Time
		loan.DateClosed = &closed
	}

	return loan, nil
}

// FindActiveLoans returns the open loans matching the filter as a joined
// read model, ordered by due date ascending. The result is materialized
// before the connection is released; rerun the operation to restart the
// sequence.
func (e *Engine) FindActiveLoans(ctx context.Context, filter lending.ActiveLoanFilter) ([]lending.LoanView, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opFindActiveLoans, nil)

	views, err := e.findActiveLoans(ctx, filter)
	e.observeOperation(ctx, span, opFindActiveLoans, time.Since(start), err)

	return views, err
}

func (e *Engine) findActiveLoans(ctx context.Context, filter lending.ActiveLoanFilter) ([]lending.LoanView, error) {
	selectStmt := builder().
		From(goqu.T(tableLoans).As("l")).
		InnerJoin(
			goqu.T(tableBooks).As("b"),
			goqu.On(goqu.I("b.isbn").Eq(goqu.I("l.isbn"))),
		).
		InnerJoin(
			goqu.T(tableBorrowers).As("br"),
			goqu.On(goqu.I("br.card_id").Eq(goqu.I("l.card_id"))),
		).
		Select(
			goqu.I("l.id"),
			goqu.I("l.isbn"),
			goqu.I("b.title"),
			goqu.I("l.card_id"),
			goqu.I("br.name"),
			goqu.I("l.date_opened"),
			goqu.I("l.due_date"),
		).
		Where(goqu.I("l.date_closed").IsNull()).
		Order(goqu.I("l.due_date").Asc())

	if filter.ISBN() != "" {
		selectStmt = selectStmt.Where(goqu.I("l.isbn").Eq(filter.ISBN()))
	}

	if filter.CardID() != "" {
		selectStmt = selectStmt.Where(goqu.I("l.card_id").Eq(filter.CardID()))
	}

	if filter.NameContains() != "" {
		pattern := "%" + strings.ToLower(filter.NameContains()) + "%"
		selectStmt = selectStmt.Where(goqu.L("LOWER(br.name)").Like(pattern))
	}

	sqlQuery, buildErr := toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	start := time.Now()
	rows, queryErr := e.db.Query(ctx, sqlQuery)
	e.logDebugSQL(ctx, sqlQuery, time.Since(start))

	if queryErr != nil {
		return nil, errors.Join(lending.ErrQueryingStoreFailed, queryErr)
	}
	defer func() { _ = e.closeRows(ctx, rows) }()

	views := make([]lending.LoanView, 0)

	for rows.Next() {
		var view lending.LoanView

		if scanErr := rows.Scan(
			&view.LoanID,
			&view.ISBN,
			&view.Title,
			&view.CardID,
			&view.BorrowerName,
			&view.DateOpened,
			&view.DueDate,
		); scanErr != nil {
			return nil, errors.Join(lending.ErrScanningRowFailed, scanErr)
		}

		views = append(views, view)
	}

	return views, nil
}
