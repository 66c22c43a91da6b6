// Package lending contains the core domain types and business failure kinds
// of the library lending engine: books, borrowers, loans, fines, and the
// filter used for active-loan searches.
//
// The package is storage-free. All persistence and transactional behavior
// lives in lending/postgresengine; callers that only need to inspect results
// or match failure kinds depend on this package alone.
//
// Business rule violations are modeled as sentinel errors (ErrUnpaidFines,
// ErrMaxActiveLoans, ...) so that callers can discriminate every failure kind
// with errors.Is instead of parsing messages.
package lending
