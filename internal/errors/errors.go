// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the repodoc CLI.
//
// This package defines UserError, a type that carries structured error
// information including what went wrong, why it happened, and how to fix it.
// It also defines consistent exit codes for different error categories.
//
// # Usage Example
//
// Creating and displaying errors:
//
//	err := errors.NewNetworkError(
//	    "Cannot reach the GitHub API",
//	    "The request to api.github.com timed out",
//	    "Check your network connection and try again",
//	    underlyingErr,
//	)
//	if err != nil {
//	    errors.FatalError(err, false)
//	}
//
// # Formatted Output
//
// The Format() method provides colored terminal output:
//
//	Error: Cannot reach the GitHub API
//	Cause: The request to api.github.com timed out
//	Fix:   Check your network connection and try again
//
// For JSON output, ToJSON() yields a machine-readable structure with the
// same fields plus the exit code.
//
// # Exit Codes
//
// The package defines semantic exit codes following Unix conventions:
//   - ExitSuccess (0): Successful execution
//   - ExitConfig (1): Configuration errors (missing/invalid config)
//   - ExitValidation (2): Structurally invalid LLM output
//   - ExitNetwork (3): Network/API errors (connection failed, timeout, auth)
//   - ExitInput (4): Invalid user input (bad arguments, validation errors)
//   - ExitPermission (5): Permission denied (file access, etc.)
//   - ExitNotFound (6): Resource not found (repository, cache entry, etc.)
//   - ExitInternal (10): Internal errors (bugs, panics)
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for different error categories.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitConfig indicates configuration errors (missing/invalid config files).
	ExitConfig = 1

	// ExitValidation indicates structurally invalid LLM output (missing
	// field, out-of-range index, non-permutation chapter order).
	ExitValidation = 2

	// ExitNetwork indicates network or API errors (connection failed,
	// timeout, rejected token, rate limit).
	ExitNetwork = 3

	// ExitInput indicates invalid user input (bad arguments, unparseable
	// repository URL).
	ExitInput = 4

	// ExitPermission indicates permission denied errors (file access, etc.).
	ExitPermission = 5

	// ExitNotFound indicates resource not found errors (repository, ref,
	// cache entry).
	ExitNotFound = 6

	// ExitInternal indicates internal errors (bugs, unexpected panics).
	// Exit code 10 signals "this is a bug that should be reported".
	ExitInternal = 10
)

// UserError represents an error with structured context for end users.
//
// It provides three levels of information:
//   - Message: What went wrong (user-facing error description)
//   - Cause: Why it happened (diagnostic information)
//   - Fix: How to fix it (actionable suggestion)
//
// UserError also carries an exit code for consistent CLI exit behavior
// and optionally wraps an underlying error for error chain compatibility.
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is the exit code that should be used when exiting due to this error.
	ExitCode int

	// Err is the underlying error that caused this error (optional).
	// This enables error wrapping and compatibility with errors.Is/As.
	Err error
}

// Error implements the error interface. If an underlying error is present,
// its message is appended for context.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error, allowing standard library error
// inspection functions to work with error chains.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error with exit code ExitConfig.
//
// Use this for errors related to missing, invalid, or malformed
// configuration files.
//
// Example:
//
//	return NewConfigError(
//	    "Cannot load repodoc configuration",
//	    "The config file .repodoc/project.yaml is malformed",
//	    "Run 'repodoc init' to create a fresh configuration",
//	    nil,
//	)
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitConfig,
		Err:      err,
	}
}

// NewValidationError creates a validation error with exit code ExitValidation.
//
// Use this when the LLM returned structurally invalid output that a stage
// refused to accept. The stage name belongs in the cause.
//
// Example:
//
//	return NewValidationError(
//	    "The model returned an invalid chapter order",
//	    "Stage order_chapters: index 2 appears more than once",
//	    "Re-run the generation; a different completion usually validates",
//	    err,
//	)
func NewValidationError(msg, cause, fix string, err error) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitValidation,
		Err:      err,
	}
}

// NewNetworkError creates a network error with exit code ExitNetwork.
//
// Use this for errors related to network connectivity, the GitHub API, or
// LLM provider calls.
//
// Example:
//
//	return NewNetworkError(
//	    "Cannot reach the LLM provider",
//	    "Connection timed out after 300 seconds",
//	    "Check your network connection and the provider base URL",
//	    err,
//	)
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitNetwork,
		Err:      err,
	}
}

// NewInputError creates an input validation error with exit code ExitInput.
//
// Use this for errors related to invalid user input, such as bad
// command-line arguments. Input errors typically do not wrap an underlying
// error.
//
// Example:
//
//	return NewInputError(
//	    "Invalid repository URL",
//	    "Expected a URL like https://github.com/owner/repo",
//	    "Pass the repository as owner/repo or a full GitHub URL",
//	)
func NewInputError(msg, cause, fix string) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitInput,
		Err:      nil, // Input errors typically don't wrap underlying errors
	}
}

// NewPermissionError creates a permission denied error with exit code
// ExitPermission.
//
// Example:
//
//	return NewPermissionError(
//	    "Cannot write to the output directory",
//	    "Permission denied for ./docs/",
//	    "Choose a writable directory with --out",
//	    err,
//	)
func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitPermission,
		Err:      err,
	}
}

// NewNotFoundError creates a resource not found error with exit code
// ExitNotFound. Not found errors typically do not wrap an underlying error.
//
// Example:
//
//	return NewNotFoundError(
//	    "Repository not found",
//	    "github.com/acme/widget does not exist or is private",
//	    "Check the URL, or pass a token with --token for private repos",
//	)
func NewNotFoundError(msg, cause, fix string) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitNotFound,
		Err:      nil, // Not found errors typically don't wrap underlying errors
	}
}

// NewInternalError creates an internal error with exit code ExitInternal.
//
// Use this for unexpected errors that indicate bugs in the program.
// Internal errors should be reported to the maintainers.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return &UserError{
		Message:  msg,
		Cause:    cause,
		Fix:      fix,
		ExitCode: ExitInternal,
		Err:      err,
	}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display.
//
// The output includes colored sections for Error (red/bold), Cause (yellow),
// and Fix (green). Color output respects the NO_COLOR environment variable
// and can be explicitly disabled with the noColor parameter. Empty Cause or
// Fix fields are omitted from the output.
//
// Note: This method temporarily modifies the global color.NoColor state
// and restores it after formatting.
func (e *UserError) Format(noColor bool) string {
	// Save and restore global color state to avoid side effects
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON represents error information in JSON format.
//
// This structure is suitable for machine consumption and integrates with
// CLI commands that support --json output mode.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the UserError to a JSON-serializable structure. Empty
// Cause and Fix values are omitted via the omitempty tags.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints the error and exits with the appropriate code.
//
// If the error is a UserError, it uses Format() for colored output or
// ToJSON() for JSON mode. For non-UserError types, it prints a simple
// error message and exits with ExitInternal.
//
// This function never returns - it always calls os.Exit().
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ue, ok := err.(*UserError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// Encode error is intentionally ignored since we're about to exit.
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	// Fallback for non-UserError
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
