// Package preflight provides readiness checks for the filesystem paths, the
// Ledger and the stage collaborator commands a pipeline depends on.
//
// `smoothbdr config validate` runs every check and fails when one does not
// pass. Stage commands are only checked for enabled stages.
package preflight
