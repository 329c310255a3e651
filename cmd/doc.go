// Package cmd contains the command-line interface of tagwatch.
//
// The root command runs checks once, on a cron schedule or on demand through the HTTP API,
// depending on the flags. The lambda subcommand hosts the same check run in the AWS Lambda
// runtime.
//
// Exit codes of a single run:
//   - 0: The run completed.
//   - 1: Invalid configuration or an aborted run.
//   - 2: Changes were detected but the new state could not be saved.
package cmd
