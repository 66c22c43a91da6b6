// Package config provides database connection configurations for tests and
// local tooling: a DSN plus ready-made pgxpool, database/sql, and sqlx
// handles pointed at the test database.
package config
