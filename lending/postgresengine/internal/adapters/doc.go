// Package adapters isolates the lending engine from the concrete database
// client. Three adapters implement the same small interface: pgxpool.Pool
// (recommended), database/sql, and sqlx. The engine builds complete SQL
// strings and never touches driver-specific types.
package adapters
