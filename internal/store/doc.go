// Package store provides SQLite-backed run history for jpegconform.
//
// Every run records:
//   - Runs: one row per invocation of the harness, with the program under
//     test, the status-line contract version and pass/fail counts
//   - Scenario results: one row per scenario, in report order, with the
//     per-step arguments, exit codes, captured output and errors as JSON
//
// Runs are ordered by seq, a per-database counter assigned at write time,
// never by timestamp. Run IDs are random UUIDs.
//
// Deleting a run deletes its scenario results with it (foreign keys are
// on). The schema is upgraded in place on Open, tracked by user_version.
package store
