// Package stage defines the contract between the worker loop and the domain
// logic of each pipeline stage.
//
// A Handler receives a leased queue item and reports an Outcome: advance,
// requeue, skip, exhaust, or continue. The worker owns every Ledger write;
// handlers never touch the store.
package stage
