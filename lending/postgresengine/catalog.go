package postgresengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/branchlib/lending-go/lending"
)

const (
	opBookExists    = "book_exists"
	opBookByISBN    = "book_by_isbn"
	opBookTitle     = "book_title"
	opBookAvailable = "book_available"
	opSearchBooks   = "search_books"

	sqlAuthorsAgg = "COALESCE(STRING_AGG(DISTINCT a.name, ', ' ORDER BY a.name), '')"
	sqlBookIsOut  = "EXISTS (SELECT 1 FROM loans ol WHERE ol.isbn = b.isbn AND ol.date_closed IS NULL)"
)

// BookExists reports whether a book with the given ISBN is in the catalog.
func (e *Engine) BookExists(ctx context.Context, isbn lending.BookID) (bool, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBookExists, map[string]string{spanAttrBook: isbn})

	count, err := e.queryCount(ctx, e.db, builder().
		From(tableBooks).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{colISBN: isbn}))
	e.observeOperation(ctx, span, opBookExists, time.Since(start), err)

	return count > 0, err
}

// BookByISBN returns the catalog entry for the given ISBN, or
// lending.ErrBookNotFound.
func (e *Engine) BookByISBN(ctx context.Context, isbn lending.BookID) (lending.Book, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBookByISBN, map[string]string{spanAttrBook: isbn})

	book, err := e.queryBook(ctx, isbn)
	e.observeOperation(ctx, span, opBookByISBN, time.Since(start), err)

	return book, err
}

// BookTitle returns the title of the given book, or lending.ErrBookNotFound.
func (e *Engine) BookTitle(ctx context.Context, isbn lending.BookID) (string, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBookTitle, map[string]string{spanAttrBook: isbn})

	book, err := e.queryBook(ctx, isbn)
	e.observeOperation(ctx, span, opBookTitle, time.Since(start), err)

	return book.Title, err
}

func (e *Engine) queryBook(ctx context.Context, isbn lending.BookID) (lending.Book, error) {
	var empty lending.Book

	sqlQuery, buildErr := toSQL(builder().
		From(tableBooks).
		Select(colISBN, colTitle).
		Where(goqu.Ex{colISBN: isbn}))
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
		return empty, lending.ErrBookNotFound
	}

	var book lending.Book
	if scanErr := rows.Scan(&book.ISBN, &book.Title); scanErr != nil {
		return empty, errors.Join(lending.ErrScanningRowFailed, scanErr)
	}

	return book, nil
}

// BookAvailable reports whether the book has no open loan. A book unknown to
// the catalog is reported as available; checkout still rejects it with
// lending.ErrBookNotFound.
func (e *Engine) BookAvailable(ctx context.Context, isbn lending.BookID) (bool, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opBookAvailable, map[string]string{spanAttrBook: isbn})

	count, err := e.queryCount(ctx, e.db, openLoansForBook(isbn))
	e.observeOperation(ctx, span, opBookAvailable, time.Since(start), err)

	return count == 0, err
}

// SearchBooks performs a case-insensitive substring search across ISBN,
// title, and author names, returning each hit with its aggregated author
// list and its IN/OUT availability status, ordered by title.
func (e *Engine) SearchBooks(ctx context.Context, query string) ([]lending.BookSearchResult, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, opSearchBooks, nil)

	results, err := e.searchBooks(ctx, query)
	e.observeOperation(ctx, span, opSearchBooks, time.Since(start), err)

	return results, err
}

func (e *Engine) searchBooks(ctx context.Context, query string) ([]lending.BookSearchResult, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	selectStmt := builder().
		From(goqu.T(tableBooks).As("b")).
		LeftJoin(
			goqu.T(tableBookAuthors).As("ba"),
			goqu.On(goqu.I("ba.isbn").Eq(goqu.I("b.isbn"))),
		).
		LeftJoin(
			goqu.T(tableAuthors).As("a"),
			goqu.On(goqu.I("a.id").Eq(goqu.I("ba.author_id"))),
		).
		Select(
			goqu.I("b.isbn"),
			goqu.I("b.title"),
			goqu.L(sqlAuthorsAgg),
			goqu.L(sqlBookIsOut),
		).
		Where(goqu.Or(
			goqu.L("LOWER(b.isbn)").Like(pattern),
			goqu.L("LOWER(b.title)").Like(pattern),
			goqu.L("LOWER(a.name)").Like(pattern),
		)).
		GroupBy(goqu.I("b.isbn"), goqu.I("b.title")).
		Order(goqu.I("b.title").Asc())

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

	results := make([]lending.BookSearchResult, 0)

	for rows.Next() {
		var result lending.BookSearchResult
		var isOut bool

		if scanErr := rows.Scan(&result.ISBN, &result.Title, &result.Authors, &isOut); scanErr != nil {
			return nil, errors.Join(lending.ErrScanningRowFailed, scanErr)
		}

		result.Status = lending.StatusIn
		if isOut {
			result.Status = lending.StatusOut
		}

		results = append(results, result)
	}

	return results, nil
}

// openLoansForBook counts open loans referencing the given book.
func openLoansForBook(isbn lending.BookID) *goqu.SelectDataset {
	return builder().
		From(tableLoans).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colISBN:       isbn,
			colDateClosed: nil,
		})
}
