// Package core provides the business logic for spreadsheet import operations.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
// Errors raised by the PostgreSQL store:
//
//	DB001 - Duplicate key: A record with this key already exists
//	        Patterns: "duplicate key"
//
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "foreign key constraint", "violates foreign key"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock"
//
// # Import Errors (IMP001-IMP099)
//
// Run-fatal configuration errors:
//
//	IMP001 - Missing key column: No column holds the record name
//	         Patterns: "missing required column"
//
//	IMP002 - Unknown profile: The import profile does not exist
//	         Patterns: "unknown import profile"
//
//	IMP003 - Invalid option: A run switch was not true or false
//	         Patterns: "invalid import option"
//
// # File Errors (FILE001-FILE099)
//
// Errors related to reading the uploaded file:
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Patterns: "file too large"
//
//	FILE002 - Unsupported type: Only workbooks and CSV files are accepted
//	          Patterns: "unsupported file type"
//
//	FILE003 - Corrupt workbook: The workbook could not be opened
//	          Patterns: "open workbook"
//
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The file has no header row
//	          Patterns: "file is empty", "is empty"
//
//	FILE006 - Unreadable file: Any other read failure
//	          Patterns: "unreadable source file"
//
// # Run Errors (UPL001-UPL099)
//
//	UPL001 - Import cancelled: The import was stopped before the end
//	         Patterns: "import cancelled"
//
//	UPL002 - System busy: Too many imports in progress
//	         Patterns: "too many concurrent imports"
//
//	UPL003 - Run not found: The run result has expired
//	         Patterns: "run not found"
//
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check the file for repeated names",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check the file for repeated names",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Enable reference creation or import the referenced records first",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Enable reference creation or import the referenced records first",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP003)
	// =========================================================================
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "No column holds the record name",
			Action:  "Add a name column (for example \"Nom\") to the first row of the sheet",
			Code:    "IMP001",
		},
	},
	{
		pattern: "unknown import profile",
		msg: UserMessage{
			Message: "Unknown import profile",
			Action:  "List the available profiles and pick one of them",
			Code:    "IMP002",
		},
	},
	{
		pattern: "invalid import option",
		msg: UserMessage{
			Message: "An import option has an invalid value",
			Action:  "Use true or false for update_existing, create_missing, create_references and dry_run",
			Code:    "IMP003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload an .xlsx workbook or a .csv file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Re-save the file from your spreadsheet application as .xlsx",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "is empty",
		msg: UserMessage{
			Message: "The first sheet is empty",
			Action:  "Put the header row on line 1 of the first sheet",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unreadable source file",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file is a valid workbook or CSV file",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Run Errors (UPL001-UPL005)
	// =========================================================================
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Rows processed before cancellation were kept; re-run to finish",
			Code:    "UPL001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "Run results are kept for a limited time. Start a new import",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try importing a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := fmt.Errorf("%w for key %q", ErrMissingKeyColumn, "name")
//	msg := MapError(err)
//	// msg.Code == "IMP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
