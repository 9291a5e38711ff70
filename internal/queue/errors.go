package queue

import "errors"

var (
	// ErrUnknownQueue is returned for a queue name outside the fixed registry.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrNotFound is returned when an item or worker record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLeaseLost is returned when the caller no longer holds the item's lease.
	ErrLeaseLost = errors.New("lease lost")
	// ErrNotActive is returned when an item is not in a status the operation accepts.
	ErrNotActive = errors.New("item not active")
	// ErrSchemaMismatch is returned when the database carries migrations this binary does not know.
	ErrSchemaMismatch = errors.New("ledger schema mismatch")
)
