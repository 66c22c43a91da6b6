package lending

import "strings"

/***** ActiveLoanFilter *****/

// ActiveLoanFilter restricts an active-loan search. The zero value matches
// every open loan; the With... methods narrow it down. All constraints are
// combined with AND. Filters are value types and safe to reuse.
type ActiveLoanFilter struct {
	isbn         BookID
	cardID       CardID
	nameContains string
}

// FilterActiveLoans creates an empty filter matching every open loan.
func FilterActiveLoans() ActiveLoanFilter {
	return ActiveLoanFilter{}
}

// WithBook restricts the search to loans of one book.
// An empty isbn leaves the filter unchanged.
func (f ActiveLoanFilter) WithBook(isbn BookID) ActiveLoanFilter {
	f.isbn = strings.TrimSpace(isbn)
	return f
}

// WithBorrower restricts the search to loans of one borrower.
// An empty cardID leaves the filter unchanged.
func (f ActiveLoanFilter) WithBorrower(cardID CardID) ActiveLoanFilter {
	f.cardID = strings.TrimSpace(cardID)
	return f
}

// WithNameContaining restricts the search to borrowers whose name contains
// the given substring, case-insensitively.
func (f ActiveLoanFilter) WithNameContaining(substring string) ActiveLoanFilter {
	f.nameContains = strings.TrimSpace(substring)
	return f
}

// ISBN returns the book constraint, or "" when unset.
func (f ActiveLoanFilter) ISBN() BookID {
	return f.isbn
}

// CardID returns the borrower constraint, or "" when unset.
func (f ActiveLoanFilter) CardID() CardID {
	return f.cardID
}

// NameContains returns the name-substring constraint, or "" when unset.
func (f ActiveLoanFilter) NameContains() string {
	return f.nameContains
}

// IsEmpty reports whether the filter has no constraints at all.
func (f ActiveLoanFilter) IsEmpty() bool {
	return f.isbn == "" && f.cardID == "" && f.nameContains == ""
}
