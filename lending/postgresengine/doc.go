// Package postgresengine implements the lending engine on PostgreSQL.
//
// Every operation from the lending surface (borrower registry, catalog
// checks, loan ledger, fine engine) is executed as a single unit of work:
// reads that inform a decision and the subsequent write run in one
// transaction, serialized per borrower / per book with transaction-scoped
// advisory locks. Schema-level constraints (unique natural id, one open loan
// per book via a partial unique index) back the same invariants, so a lost
// race surfaces as a storage error instead of corrupted state.
//
// The engine supports pgxpool.Pool (recommended), database/sql, and sqlx
// through an internal adapter layer, and carries optional observability
// via Logger, ContextualLogger, MetricsCollector, and TracingCollector
// interfaces configured with functional options.
package postgresengine
