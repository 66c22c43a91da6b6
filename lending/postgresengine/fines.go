package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/branchlib/lending-go/lending"
)

const (
	opRecomputeFines   = "recompute_fines"
	opFineSummary      = "fine_summary"
	opFinesForBorrower = "fines_for_borrower"
	opPayAllFines      = "pay_all_fines"

	logAttrFinesInserted = "fines_inserted"
	logAttrFinesUpdated  = "fines_updated"

	// late days of a loan: against its closing date when closed, against the
	// sweep date while still open
	sqlLateDays = "(CASE WHEN l.date_closed IS NOT NULL THEN l.date_closed - l.due_date ELSE ?::date - l.due_date END)"

	// fine amount at the fixed daily rate, rounded to 2 decimal places
	sqlFineAmount = "ROUND(" + sqlLateDays + " * 0.25, 2)"
)

// RecomputeFines sweeps every loan (open or closed) and brings the fines
// relation up to date for the given date: missing fines for overdue loans
// are inserted unpaid, existing unpaid fines are overwritten with the
// recomputed amount, and paid fines are never touched. The whole sweep is
// one transaction; the report carries the inserted and updated row counts.
func (e *Engine) RecomputeFines(ctx context.Context, today time.Time) (lending.RecomputeReport, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opRecomputeFines, nil)

	report, err := e.recomputeFines(ctx, lending.DateOf(today))
	e.observeOperation(ctx, span, opRecomputeFines, time.Since(start), err,
		logAttrFinesInserted, report.Inserted,
		logAttrFinesUpdated, report.Updated)

	return report, err
}

func (e *Engine) recomputeFines(ctx context.Context, today time.Time) (lending.RecomputeReport, error) {
	var empty lending.RecomputeReport

	todayStr := today.Format(dateLayout)

	tx, err := e.beginTx(ctx)
	if err != nil {
		return empty, err
	}
	defer e.rollbackTx(ctx, tx)

	overdueWithoutFine := builder().
		From(goqu.T(tableLoans).As("l")).
		LeftJoin(
			goqu.T(tableFines).As("f"),
			goqu.On(goqu.I("f.loan_id").Eq(goqu.I("l.id"))),
		).
		Select(
			goqu.I("l.id"),
			goqu.L(sqlFineAmount, todayStr),
			goqu.V(false),
		).
		Where(
			goqu.I("f.loan_id").IsNull(),
			goqu.L(sqlLateDays+" > 0", todayStr),
		)

	inserted, err := e.execStatement(ctx, tx.Exec, builder().
		Insert(tableFines).
		Cols(colFineLoanID, colAmount, colPaid).
		FromQuery(overdueWithoutFine))
	if err != nil {
		return empty, err
	}

	updated, err := e.execStatement(ctx, tx.Exec, builder().
		Update(tableFines).
		Set(goqu.Record{colAmount: goqu.L(sqlFineAmount, todayStr)}).
		From(goqu.T(tableLoans).As("l")).
		Where(
			goqu.I("l.id").Eq(goqu.I("fines.loan_id")),
			goqu.I("fines.paid").IsFalse(),
			goqu.L(sqlLateDays+" > 0", todayStr),
		))
	if err != nil {
		return empty, err
	}

	if err = e.commitTx(ctx, tx); err != nil {
		return empty, err
	}

	return lending.RecomputeReport{Inserted: inserted, Updated: updated}, nil
}

// FineSummary aggregates fine amounts per borrower, skipping paid fines
// unless includePaid is set, optionally restricted to one borrower via a
// non-empty cardID. Borrowers without matching fines do not appear.
func (e *Engine) FineSummary(
	ctx context.Context,
	cardID lending.CardID,
	includePaid bool,
) ([]lending.FineSummaryRow, error) {

	start := time.Now()
	ctx, span := e.startSpan(ctx, opFineSummary, nil)

	summary, err := e.fineSummary(ctx, cardID, includePaid)
	e.observeOperation(ctx, span, opFineSummary, time.Since(start), err)

	return summary, err
}

func (e *Engine) fineSummary(
	ctx context.Context,
	cardID lending.CardID,
	includePaid bool,
) ([]lending.FineSummaryRow, error) {

	selectStmt := builder().
		From(goqu.T(tableBorrowers).As("br")).
		InnerJoin(
			goqu.T(tableLoans).As("l"),
			goqu.On(goqu.I("l.card_id").Eq(goqu.I("br.card_id"))),
		).
		InnerJoin(
			goqu.T(tableFines).As("f"),
			goqu.On(goqu.I("f.loan_id").Eq(goqu.I("l.id"))),
		).
		Select(
			goqu.I("br.card_id"),
			goqu.I("br.name"),
			goqu.SUM(goqu.I("f.amount")),
		).
		GroupBy(goqu.I("br.card_id"), goqu.I("br.name")).
		Order(goqu.I("br.name").Asc())

	if !includePaid {
		selectStmt = selectStmt.Where(goqu.I("f.paid").IsFalse())
	}

	if cardID != "" {
		selectStmt = selectStmt.Where(goqu.I("br.card_id").Eq(cardID))
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

	summary := make([]lending.FineSummaryRow, 0)

	for rows.Next() {
		var row lending.FineSummaryRow

		if scanErr := rows.Scan(&row.CardID, &row.BorrowerName, &row.TotalAmount); scanErr != nil {
			return nil, errors.Join(lending.ErrScanningRowFailed, scanErr)
		}

		summary = append(summary, row)
	}

	return summary, nil
}

// FinesForBorrower returns every fine row on the borrower's loans, paid or
// unpaid, ordered by loan id. A borrower without fines yields an empty slice.
func (e *Engine) FinesForBorrower(ctx context.Context, cardID lending.CardID) ([]lending.Fine, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opFinesForBorrower, map[string]string{spanAttrBorrower: cardID})

	fines, err := e.finesForBorrower(ctx, cardID)
	e.observeOperation(ctx, span, opFinesForBorrower, time.Since(start), err)

	return fines, err
}

func (e *Engine) finesForBorrower(ctx context.Context, cardID lending.CardID) ([]lending.Fine, error) {
	selectStmt := builder().
		From(goqu.T(tableFines).As("f")).
		InnerJoin(
			goqu.T(tableLoans).As("l"),
			goqu.On(goqu.I("l.id").Eq(goqu.I("f.loan_id"))),
		).
		Select(
			goqu.I("f.loan_id"),
			goqu.I("f.amount"),
			goqu.I("f.paid"),
		).
		Where(goqu.I("l.card_id").Eq(cardID)).
		Order(goqu.I("f.loan_id").Asc())

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

	fines := make([]lending.Fine, 0)

	for rows.Next() {
		var fine lending.Fine

		if scanErr := rows.Scan(&fine.LoanID, &fine.Amount, &fine.Paid); scanErr != nil {
			return nil, errors.Join(lending.ErrScanningRowFailed, scanErr)
		}

		fines = append(fines, fine)
	}

	return fines, nil
}

// PayAllFines marks every unpaid fine on the borrower's closed loans as
// paid, all in one transaction. If any unpaid fine belongs to a loan that is
// still open, the operation fails with lending.ErrBooksStillOut and writes
// nothing; paying is all-or-nothing behind the gate.
func (e *Engine) PayAllFines(ctx context.Context, cardID lending.CardID) error {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opPayAllFines, map[string]string{spanAttrBorrower: cardID})

	err := e.payAllFines(ctx, cardID)
	e.observeOperation(ctx, span, opPayAllFines, time.Since(start), err)

	return err
}

func (e *Engine) payAllFines(ctx context.Context, cardID lending.CardID) error {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return err
	}
	defer e.rollbackTx(ctx, tx)

	if err = e.acquireAdvisoryLock(ctx, tx, advisoryKeyBorrowerPrefix+cardID); err != nil {
		return err
	}

	unpaidOnOpenLoans, err := e.queryCount(ctx, tx, builder().
		From(goqu.T(tableLoans).As("l")).
		InnerJoin(
			goqu.T(tableFines).As("f"),
			goqu.On(goqu.I("f.loan_id").Eq(goqu.I("l.id"))),
		).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.I("l.card_id").Eq(cardID),
			goqu.I("f.paid").IsFalse(),
			goqu.I("l.date_closed").IsNull(),
		))
	if err != nil {
		return err
	}

	if unpaidOnOpenLoans > 0 {
		return lending.ErrBooksStillOut
	}

	if _, err = e.execStatement(ctx, tx.Exec, builder().
		Update(tableFines).
		Set(goqu.Record{colPaid: true}).
		From(goqu.T(tableLoans).As("l")).
		Where(
			goqu.I("l.id").Eq(goqu.I("fines.loan_id")),
			goqu.I("l.card_id").Eq(cardID),
			goqu.I("fines.paid").IsFalse(),
			goqu.I("l.date_closed").IsNotNull(),
		)); err != nil {
		return err
	}

	return e.commitTx(ctx, tx)
}
