// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

// TestUserError_Error verifies the Error() method implementation.
func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err: &UserError{
				Message: "Cannot reach the GitHub API",
				Err:     fmt.Errorf("connection refused"),
			},
			want: "Cannot reach the GitHub API: connection refused",
		},
		{
			name: "without underlying error",
			err: &UserError{
				Message: "Invalid input",
				Err:     nil,
			},
			want: "Invalid input",
		},
		{
			name: "empty message with underlying error",
			err: &UserError{
				Message: "",
				Err:     fmt.Errorf("some error"),
			},
			want: ": some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("UserError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestExitCodes verifies that exit code constants have the correct values.
func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		want     int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitConfig", ExitConfig, 1},
		{"ExitValidation", ExitValidation, 2},
		{"ExitNetwork", ExitNetwork, 3},
		{"ExitInput", ExitInput, 4},
		{"ExitPermission", ExitPermission, 5},
		{"ExitNotFound", ExitNotFound, 6},
		{"ExitInternal", ExitInternal, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.exitCode != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.exitCode, tt.want)
			}
		})
	}
}

// TestConstructors verifies that all constructor functions work correctly.
func TestConstructors(t *testing.T) {
	underlyingErr := fmt.Errorf("underlying error")

	tests := []struct {
		name         string
		constructor  func() *UserError
		wantExitCode int
		wantHasErr   bool
	}{
		{
			name: "NewConfigError",
			constructor: func() *UserError {
				return NewConfigError("msg", "cause", "fix", underlyingErr)
			},
			wantExitCode: ExitConfig,
			wantHasErr:   true,
		},
		{
			name: "NewValidationError",
			constructor: func() *UserError {
				return NewValidationError("msg", "cause", "fix", underlyingErr)
			},
			wantExitCode: ExitValidation,
			wantHasErr:   true,
		},
		{
			name: "NewNetworkError",
			constructor: func() *UserError {
				return NewNetworkError("msg", "cause", "fix", underlyingErr)
			},
			wantExitCode: ExitNetwork,
			wantHasErr:   true,
		},
		{
			name: "NewInputError",
			constructor: func() *UserError {
				return NewInputError("msg", "cause", "fix")
			},
			wantExitCode: ExitInput,
			wantHasErr:   false, // Input errors don't wrap underlying errors
		},
		{
			name: "NewPermissionError",
			constructor: func() *UserError {
				return NewPermissionError("msg", "cause", "fix", underlyingErr)
			},
			wantExitCode: ExitPermission,
			wantHasErr:   true,
		},
		{
			name: "NewNotFoundError",
			constructor: func() *UserError {
				return NewNotFoundError("msg", "cause", "fix")
			},
			wantExitCode: ExitNotFound,
			wantHasErr:   false, // Not found errors don't wrap underlying errors
		},
		{
			name: "NewInternalError",
			constructor: func() *UserError {
				return NewInternalError("msg", "cause", "fix", underlyingErr)
			},
			wantExitCode: ExitInternal,
			wantHasErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.constructor()

			if got.Message != "msg" || got.Cause != "cause" || got.Fix != "fix" {
				t.Errorf("fields = %q/%q/%q, want msg/cause/fix", got.Message, got.Cause, got.Fix)
			}
			if got.ExitCode != tt.wantExitCode {
				t.Errorf("ExitCode = %d, want %d", got.ExitCode, tt.wantExitCode)
			}
			hasErr := got.Err != nil
			if hasErr != tt.wantHasErr {
				t.Errorf("has underlying error = %v, want %v", hasErr, tt.wantHasErr)
			}
		})
	}
}

// TestErrorChain verifies error wrapping compatibility with stdlib errors package.
func TestErrorChain(t *testing.T) {
	t.Run("errors.Is works with UserError", func(t *testing.T) {
		sentinel := fmt.Errorf("sentinel error")
		wrapped := fmt.Errorf("wrapped: %w", sentinel)
		userErr := NewNetworkError("network error", "cause", "fix", wrapped)

		if !errors.Is(userErr, sentinel) {
			t.Error("errors.Is should find sentinel error in chain")
		}
	})

	t.Run("errors.As works with UserError", func(t *testing.T) {
		innerErr := NewConfigError("config error", "cause", "fix", nil)
		outerErr := NewValidationError("validation error", "cause", "fix", innerErr)

		var targetErr *UserError
		if !errors.As(outerErr, &targetErr) {
			t.Fatal("errors.As should extract UserError")
		}

		// Should get the outer (validation) error first
		if targetErr.ExitCode != ExitValidation {
			t.Errorf("ExitCode = %d, want %d", targetErr.ExitCode, ExitValidation)
		}

		var cfgErr *UserError
		if !errors.As(targetErr.Err, &cfgErr) {
			t.Fatal("errors.As should extract config UserError from chain")
		}
		if cfgErr.ExitCode != ExitConfig {
			t.Errorf("nested ExitCode = %d, want %d", cfgErr.ExitCode, ExitConfig)
		}
	})
}

// TestUserError_Format verifies the Format() method implementation.
func TestUserError_Format(t *testing.T) {
	tests := []struct {
		name    string
		err     *UserError
		noColor bool
		want    []string // Substrings that must be present
	}{
		{
			name: "full error with color disabled",
			err: &UserError{
				Message:  "Repository not found",
				Cause:    "github.com/acme/widget does not exist or is private",
				Fix:      "Pass a token with --token",
				ExitCode: ExitNotFound,
			},
			noColor: true,
			want: []string{
				"Error: Repository not found",
				"Cause: github.com/acme/widget does not exist or is private",
				"Fix:   Pass a token with --token",
			},
		},
		{
			name: "error without cause",
			err: &UserError{
				Message:  "Invalid input",
				Fix:      "Use owner/repo format",
				ExitCode: ExitInput,
			},
			noColor: true,
			want:    []string{"Error: Invalid input", "Fix:   Use owner/repo format"},
		},
		{
			name: "minimal error (message only)",
			err: &UserError{
				Message:  "Something failed",
				ExitCode: ExitInternal,
			},
			noColor: true,
			want:    []string{"Error: Something failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Format(tt.noColor)
			for _, substr := range tt.want {
				if !strings.Contains(got, substr) {
					t.Errorf("Format() output missing %q\nGot: %s", substr, got)
				}
			}
		})
	}
}

// TestUserError_Format_NoColor verifies that NO_COLOR environment variable is respected.
func TestUserError_Format_NoColor(t *testing.T) {
	oldNoColor := os.Getenv("NO_COLOR")
	defer func() {
		if oldNoColor != "" {
			os.Setenv("NO_COLOR", oldNoColor)
		} else {
			os.Unsetenv("NO_COLOR")
		}
	}()

	err := &UserError{
		Message:  "Test error",
		Cause:    "Test cause",
		Fix:      "Test fix",
		ExitCode: ExitConfig,
	}

	os.Setenv("NO_COLOR", "1")
	output := err.Format(false) // noColor=false, but env var set

	if strings.Contains(output, "\x1b[") {
		t.Error("Format() output contains ANSI codes despite NO_COLOR being set")
	}
}

// TestUserError_ToJSON verifies the ToJSON() method implementation.
func TestUserError_ToJSON(t *testing.T) {
	err := &UserError{
		Message:  "Invalid configuration",
		Cause:    "Missing required field",
		Fix:      "Run: repodoc init",
		ExitCode: ExitConfig,
	}

	got := err.ToJSON()
	if got.Error != err.Message {
		t.Errorf("ToJSON().Error = %q, want %q", got.Error, err.Message)
	}
	if got.Cause != err.Cause {
		t.Errorf("ToJSON().Cause = %q, want %q", got.Cause, err.Cause)
	}
	if got.Fix != err.Fix {
		t.Errorf("ToJSON().Fix = %q, want %q", got.Fix, err.Fix)
	}
	if got.ExitCode != ExitConfig {
		t.Errorf("ToJSON().ExitCode = %d, want %d", got.ExitCode, ExitConfig)
	}
}

// TestFatalError verifies basic FatalError behavior.
// Note: We cannot test actual os.Exit() behavior in unit tests.
func TestFatalError(t *testing.T) {
	t.Run("nil error does nothing", func(t *testing.T) {
		// Should not panic or exit
		FatalError(nil, false)
	})
}
