// Package clierror provides structured errors for CLI output with codes,
// exit codes, and remediation hints.
package clierror

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lakefabric/sharegate/pkg/share"
)

// Exit codes. Scripts branch on these instead of parsing messages.
const (
	ExitSuccess      = 0 // Operation completed successfully
	ExitGeneral      = 1 // Unknown/unhandled error
	ExitUnauthorized = 2 // Caller lacks the required capability
	ExitNotFound     = 3 // Resource doesn't exist
	ExitInvalidState = 4 // Illegal lifecycle transition
	ExitBadRequest   = 5 // Missing or malformed parameter
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// FromError maps a domain error onto a structured CLI error with the matching
// exit code. Non-domain errors map to the general exit code with no hint.
func FromError(err error) *CLIError {
	code := share.ErrorCode(err)
	ce := &CLIError{
		Code:     code,
		Message:  err.Error(),
		ExitCode: ExitGeneral,
	}
	switch code {
	case share.ErrCodeUnauthorizedOperation:
		ce.ExitCode = ExitUnauthorized
		ce.Hint = "Check your group memberships with --as-groups or contact the dataset owner"
	case share.ErrCodeObjectNotFound:
		ce.ExitCode = ExitNotFound
	case share.ErrCodeInvalidShareState:
		ce.ExitCode = ExitInvalidState
		ce.Hint = "Check the current status with 'sharegate share info'"
	case share.ErrCodeRequiredParameter:
		ce.ExitCode = ExitBadRequest
	case share.ErrCodeExternalResourceNotFound:
		ce.ExitCode = ExitNotFound
		ce.Hint = "The grant substrate has no record of the resource; verify the item and reapply"
		ce.Retryable = true
	case "":
		ce.Code = "InternalError"
	}
	return ce
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for human-readable format.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError prints the error to stderr in the appropriate format.
func PrintError(err *CLIError, outputFormat string) {
	fmt.Fprintln(os.Stderr, FormatError(err, outputFormat))
}
