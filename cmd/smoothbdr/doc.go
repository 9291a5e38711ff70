// Command smoothbdr runs and operates the lead pipeline.
//
// `smoothbdr supervise` owns one worker process per enabled stage and serves
// the HTTP control surface; `smoothbdr worker --stage X` is what it spawns.
// Every other command reads or writes the Ledger directly, so queue and worker
// controls work whether or not a supervisor is running.
package main
