package lending

import (
	"math"
	"time"
)

// Identifier aliases. All entity identifiers are opaque strings except the
// loan id, which the store generates sequentially.
type (
	BookID = string
	CardID = string
	LoanID = int64
)

const (
	// LoanPeriodDays is the fixed loan period; the due date is set once at
	// checkout and never recomputed.
	LoanPeriodDays = 14

	// FineRatePerDay is the fixed daily fine rate in currency units.
	FineRatePerDay = 0.25
)

// Book is a catalog entry. Books are immutable once cataloged.
type Book struct {
	ISBN  BookID
	Title string
}

// Borrower is a registered library member. The natural id (SSN-equivalent)
// is unique across all borrowers for the lifetime of the system.
type Borrower struct {
	CardID    CardID
	NaturalID string
	Name      string
	Address   string
	Phone     string
}

// Loan is one lending of one book to one borrower. A nil DateClosed means
// the loan is open and the book is out.
type Loan struct {
	ID         LoanID
	ISBN       BookID
	CardID     CardID
	DateOpened time.Time
	DueDate    time.Time
	DateClosed *time.Time
}

// IsOpen reports whether the loan has not been closed yet.
func (l Loan) IsOpen() bool {
	return l.DateClosed == nil
}

// LoanView is the joined read model returned by active-loan searches.
type LoanView struct {
	LoanID       LoanID
	ISBN         BookID
	Title        string
	CardID       CardID
	BorrowerName string
	DateOpened   time.Time
	DueDate      time.Time
}

// Fine is the monetary penalty owned 1:1 by a loan. Once paid it is frozen;
// the amount is only recomputed while Paid is false.
type Fine struct {
	LoanID LoanID
	Amount float64
	Paid   bool
}

// FineSummaryRow aggregates fine amounts per borrower. Borrowers without
// matching fines never appear (inner-join semantics).
type FineSummaryRow struct {
	CardID       CardID
	BorrowerName string
	TotalAmount  float64
}

// RecomputeReport holds the row counts of one fine recomputation sweep.
type RecomputeReport struct {
	Inserted int64
	Updated  int64
}

// BookSearchResult is one catalog search hit with its availability status.
type BookSearchResult struct {
	ISBN    BookID
	Title   string
	Authors string
	Status  AvailabilityStatus
}

// AvailabilityStatus marks a book as in the library or currently out.
type AvailabilityStatus string

const (
	StatusIn  AvailabilityStatus = "IN"
	StatusOut AvailabilityStatus = "OUT"
)

// DateOf truncates a timestamp to its calendar date in UTC. Every
// date-sensitive operation normalizes its "today" input with this.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDateFor returns the due date for a loan opened on the given date.
func DueDateFor(opened time.Time) time.Time {
	return DateOf(opened).AddDate(0, 0, LoanPeriodDays)
}

// LateDays returns the number of whole calendar days by which the effective
// closing date exceeds the due date, or 0 when the loan is not overdue.
func LateDays(dueDate, effectiveClose time.Time) int {
	days := int(DateOf(effectiveClose).Sub(DateOf(dueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}

	return days
}

// FineAmountFor returns the fine amount for the given number of late days,
// rounded to 2 decimal places.
func FineAmountFor(lateDays int) float64 {
	return math.Round(float64(lateDays)*FineRatePerDay*100) / 100
}
