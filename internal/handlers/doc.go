// Package handlers provides the built-in stage handlers.
//
// Exec runs a configured command per item, speaking JSON over stdin and
// stdout, so stage logic (research, drafting, delivery) lives outside this
// process. Passthrough forwards items unchanged with a fixed score and is the
// default for stages without a command. Build wires the right handler for a
// stage from configuration.
package handlers
