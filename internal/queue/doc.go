// Package queue is the Ledger: durable named queues backed by SQLite (default)
// or Postgres, plus the worker records and system flags every process reads.
//
// The Store exposes the Lease Primitive used identically by every stage.
// Acquire claims pending or stale items with a single conditional UPDATE, so
// two workers can never hold the same lease. Complete settles a leased item
// into its next status and merges payload fields. Fail counts an attempt and
// either re-queues the item or marks it terminally failed at the cap.
//
// Schema changes ship as ordered migrations under migrations/<dialect>/ and are
// applied once at Open inside a single transaction; schema_migrations records
// which versions a database has seen.
//
// Treat this package as the single source of truth for queue semantics; no
// other package issues SQL against the Ledger.
package queue
