// Package api is the control surface over the Ledger. It translates queue
// records into transport-friendly DTOs and serves them over HTTP, and the CLI
// reuses the same QueueService so both surfaces agree on shapes and errors.
//
// # Key Types
//
// QueueItem: transport representation of one queue row, including lease,
// attempt, quality and deepening bookkeeping.
//
// QueueService: list, describe, stats, lead submission, retry and approval
// against a queue store.
//
// Server: chi router exposing health, queues, workers and system controls.
// Worker and system toggles go through a Controller so a running supervisor
// can react to them immediately; the Ledger flags are the source of truth.
//
// # Design Notes
//
// DTOs use snake_case JSON tags matching the Ledger column names. Timestamps
// use RFC3339 with milliseconds. Stage payloads pass through as
// json.RawMessage to avoid double-encoding.
package api
