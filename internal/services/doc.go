// Package services defines shared utilities consumed by stage handlers and
// the worker loop.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage and queue names, worker
//     identities, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify handler
//     failures as transient (retried up to the attempt cap) or validation
//     (terminal on the first attempt).
//
// Handlers should tag every error they return with one of the markers so the
// worker loop can settle it without knowing anything about the domain.
package services
