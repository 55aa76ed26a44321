// Package harness provides black-box conformance testing for the jpegoptim
// command-line tool.
//
// The harness never looks inside the tool. It runs the executable once per
// step with controlled arguments and output directory, captures the merged
// stdout/stderr and the exit code, and checks them against the scenario's
// assertions.
//
// # Scenario Format
//
// Besides the built-in suite (BuiltinSuite), scenarios can be defined in
// YAML files with the following structure:
//
//	name: lossy
//	description: "lossy optimization shrinks the image"
//	steps:
//	  - args: ["-m", "10", "${FIXTURES}/jpegoptim_test1.jpg"]
//	    dir: tmp/lossy
//	    check: true
//	    assertions:
//	      - type: file_exists
//	        path: tmp/lossy/jpegoptim_test1.jpg
//	      - type: status_line
//	        severity: OK
//	        verb: optimized
//	      - type: file_smaller
//	        path: tmp/lossy/jpegoptim_test1.jpg
//	        than: ${FIXTURES}/jpegoptim_test1.jpg
//
// Files are decoded strictly (unknown fields are errors) and validated
// against the embedded CUE schema in scenario.cue.
//
// # Assertion Types
//
//   - output_contains: output contains a literal substring
//   - output_matches / output_not_matches: regular expression on the output
//   - status_line: the output ends in a "[SEVERITY] ... verb." line
//   - exit_code / exit_code_nonzero: exit status checks
//   - file_exists / file_smaller: filesystem checks relative to the work dir
//   - version_at_least: the reported version is >= a semantic version
//
// # Failure Classes
//
// An execution failure (the tool could not start, or exited non-zero in a
// step with check: true) ends the scenario before any assertion runs and
// sets Result.ExecutionFailed. Assertion failures are aggregated per step
// and reported together with the captured output.
//
// # Isolation
//
// Scenarios share nothing but the filesystem, and each writes only into
// its own tmp/<name> directory. Existing files there are tolerated, so
// scenarios can be re-run without cleanup and run in parallel.
package harness
