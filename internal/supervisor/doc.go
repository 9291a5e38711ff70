// Package supervisor runs one worker process per enabled stage, restarts
// workers that exit unexpectedly, and aggregates Ledger state into health
// snapshots.
//
// The supervisor holds a file lock in the data directory so only one
// instance manages a Ledger at a time. Enable/disable and pause/resume are
// written to the Ledger and picked up by running workers on their next loop
// iteration; only process start/stop goes through the supervisor itself.
package supervisor
