// Package workflow runs the Stage Worker loop.
//
// A Worker is bound to one Stage: a Ledger queue, a handler, and the routes
// an advanced item takes. Each cycle it checks the system and worker flags,
// leases a batch of items, runs the handler on each with bounded
// parallelism, and settles every outcome through the Lease Primitive.
// Downstream items are inserted before the source item is completed, and the
// insert is keyed by the source item so a retry after a crash cannot
// duplicate it.
//
// The Heartbeat recorder keeps the worker's Ledger record current and renews
// leases on in-flight items. Cancelling the context passed to Run stops the
// loop after the in-flight batch has been settled.
package workflow
