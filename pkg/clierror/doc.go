// Package clierror provides structured error handling for CLI commands.
//
// CLI errors include an exit code, user-facing message, and optional
// troubleshooting hints. This separates internal error details from
// what gets displayed to operators.
//
// # Usage
//
//	if err := run(); err != nil {
//	    ce := clierror.FromError(err)
//	    clierror.PrintError(ce, outputFormat)
//	    os.Exit(ce.ExitCode)
//	}
package clierror
