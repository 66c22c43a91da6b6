package lending

import "errors"

// Business rule failures. Each one is a first-class result of an engine
// operation; callers discriminate them with errors.Is.
var (
	// ErrValidation is returned when a required input field is empty or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateIdentity is returned when a borrower with the same natural id already exists.
	ErrDuplicateIdentity = errors.New("a borrower with this natural id already exists")

	// ErrBorrowerNotFound is returned when the referenced borrower does not exist.
	ErrBorrowerNotFound = errors.New("borrower not found")

	// ErrBookNotFound is returned when the referenced book is not in the catalog.
	ErrBookNotFound = errors.New("book not found in catalog")

	// ErrUnpaidFines is returned when a checkout is blocked by unpaid fines.
	ErrUnpaidFines = errors.New("borrower has unpaid fines")

	// ErrMaxActiveLoans is returned when a borrower already has the maximum number of open loans.
	ErrMaxActiveLoans = errors.New("borrower already has the maximum number of active loans")

	// ErrBookUnavailable is returned when the book already has an open loan.
	ErrBookUnavailable = errors.New("book is already checked out")

	// ErrLoanNotFound is returned when a loan lookup references an id that does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanNotFoundOrClosed is returned when a check-in references a loan that does not exist or is already closed.
	ErrLoanNotFoundOrClosed = errors.New("loan not found or already closed")

	// ErrBooksStillOut is returned when fines cannot be paid because a fined loan is still open.
	ErrBooksStillOut = errors.New("borrower still has fined books checked out")
)

// Storage-boundary failures. These wrap the underlying driver error with
// errors.Join; the driver error is opaque and non-recoverable at this layer.
var (
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")
	ErrBuildingQueryFailed   = errors.New("building sql query failed")
	ErrBeginningTxFailed     = errors.New("beginning transaction failed")
	ErrCommittingTxFailed    = errors.New("committing transaction failed")
	ErrQueryingStoreFailed   = errors.New("querying the store failed")
	ErrExecutingStoreFailed  = errors.New("executing statement on the store failed")
	ErrScanningRowFailed     = errors.New("scanning database row failed")
)
