// Package helper provides test fixtures for the lending engine tests:
// unique identifiers, seeded catalog rows, registered borrowers, open
// loans, table cleanup, and direct row inspection.
package helper
