package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/branchlib/lending-go/lending"
)

const (
	opRegisterBorrower    = "register_borrower"
	opBorrowerByCard      = "borrower_by_card"
	opBorrowerByNaturalID = "borrower_by_natural_id"

	cardIDPrefix      = "ID"
	cardIDSuffixWidth = 6

	fieldNaturalID = "natural id"
	fieldName      = "name"
	fieldAddress   = "address"
	fieldPhone     = "phone"
)

var (
	// next card id = max numeric suffix over well-formed card ids, plus one
	sqlMaxCardSuffix = fmt.Sprintf(
		"COALESCE(MAX(CAST(SUBSTRING(card_id FROM %d) AS INTEGER)), 0)",
		len(cardIDPrefix)+1,
	)
	sqlCardIDWellFormed = fmt.Sprintf(
		"card_id ~ '^%s[0-9]{%d}$'", cardIDPrefix, cardIDSuffixWidth,
	)
	cardIDPattern = regexp.MustCompile(
		fmt.Sprintf(`^%s[0-9]{%d}$`, cardIDPrefix, cardIDSuffixWidth),
	)
)

// IsWellFormedCardID reports whether the given string matches the card id
// format the engine allocates.
func IsWellFormedCardID(cardID lending.CardID) bool {
	return cardIDPattern.MatchString(cardID)
}

// RegisterBorrower creates a new borrower and returns the allocated card id.
//
// All four fields must be non-empty (lending.ErrValidation otherwise) and the
// natural id must not belong to an existing borrower
// (lending.ErrDuplicateIdentity). The uniqueness check, the card id
// allocation, and the insert run in one transaction under an advisory lock,
// with a UNIQUE constraint on the natural id as a schema-level backstop.
func (e *Engine) RegisterBorrower(
	ctx context.Context,
	naturalID string,
	name string,
	address string,
	phone string,
) (lending.CardID, error) {

	start := time.Now()
	ctx, span := e.startSpan(ctx, opRegisterBorrower, nil)

	cardID, err := e.registerBorrower(ctx, naturalID, name, address, phone)
	e.observeOperation(ctx, span, opRegisterBorrower, time.Since(start), err)

	return cardID, err
}

func (e *Engine) registerBorrower(
	ctx context.Context,
	naturalID string,
	name string,
	address string,
	phone string,
) (lending.CardID, error) {

	if err := validateNonEmpty(
		fieldNaturalID, naturalID,
		fieldName, name,
		fieldAddress, address,
		fieldPhone, phone,
	); err != nil {
		return "", err
	}

	tx, err := e.beginTx(ctx)
	if err != nil {
		return "", err
	}
	defer e.rollbackTx(ctx, tx)

	if err = e.acquireAdvisoryLock(ctx, tx, advisoryKeyCardAllocation); err != nil {
		return "", err
	}

	duplicates, err := e.queryCount(ctx, tx, builder().
		From(tableBorrowers).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colNaturalID: naturalID}))
	if err != nil {
		return "", err
	}

	if duplicates > 0 {
		return "", lending.ErrDuplicateIdentity
	}

	maxSuffix, err := e.queryCount(ctx, tx, builder().
		From(tableBorrowers).
		Select(goqu.L(sqlMaxCardSuffix)).
		Where(goqu.L(sqlCardIDWellFormed)))
	if err != nil {
		return "", err
	}

	cardID := fmt.Sprintf("%s%0*d", cardIDPrefix, cardIDSuffixWidth, maxSuffix+1)

	if _, err = e.execStatement(ctx, tx.Exec, builder().
		Insert(tableBorrowers).
		Rows(goqu.Record{
			colCardID:    cardID,
			colNaturalID: naturalID,
			colName:      name,
			colAddress:   address,
			colPhone:     phone,
		})); err != nil {
		return "", err
	}

	if err = e.commitTx(ctx, tx); err != nil {
		return "", err
	}

	return cardID, nil
}

// BorrowerByCard returns the borrower with the given card id, or
// lending.ErrBorrowerNotFound.
func (e *Engine) BorrowerByCard(ctx context.Context, cardID lending.CardID) (lending.Borrower, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBorrowerByCard, map[string]string{spanAttrBorrower: cardID})

	borrower, err := e.queryBorrower(ctx, goqu.Ex{colCardID: cardID})
	e.observeOperation(ctx, span, opBorrowerByCard, time.Since(start), err)

	return borrower, err
}

// BorrowerByNaturalID returns the borrower with the given natural id, or
// lending.ErrBorrowerNotFound.
func (e *Engine) BorrowerByNaturalID(ctx context.Context, naturalID string) (lending.Borrower, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBorrowerByNaturalID, nil)

	borrower, err := e.queryBorrower(ctx, goqu.Ex{colNaturalID: naturalID})
	e.observeOperation(ctx, span, opBorrowerByNaturalID, time.Since(start), err)

	return borrower, err
}

func (e *Engine) queryBorrower(ctx context.Context, where goqu.Ex) (lending.Borrower, error) {
	var empty lending.Borrower

	sqlQuery, buildErr := toSQL(builder().
		From(tableBorrowers).
		Select(colCardID, colNaturalID, colName, colAddress, colPhone).
		Where(where))
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
		return empty, lending.ErrBorrowerNotFound
	}

	var borrower lending.Borrower
	if scanErr := rows.Scan(&borrower.CardID, &borrower.NaturalID, &borrower.Name, &borrower.Address, &borrower.Phone); scanErr != nil {
		return empty, errors.Join(lending.ErrScanningRowFailed, scanErr)
	}

	return borrower, nil
}

// validateNonEmpty takes (field, value) pairs and rejects the first empty value.
func validateNonEmpty(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return errors.Join(lending.ErrValidation, fmt.Errorf("%s must not be empty", pairs[i]))
		}
	}

	return nil
}
