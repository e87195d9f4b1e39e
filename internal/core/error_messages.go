package core

// error_messages.go maps technical errors to messages an importer can act on.
//
// # Error Codes Reference
//
// Each message carries a code that can be quoted to support.
//
// # Import Errors (IMP001-IMP099)
//
// Fatal ingestion outcomes, matched with errors.Is against the ingest kinds:
//
//	IMP001 - Empty input: the payload was blank after trimming
//	IMP002 - Empty header: the header row has no usable column names
//	IMP003 - Too few rows: a header row and at least one data row are needed
//	IMP004 - Invalid JSON shape: the JSON payload is not an array of objects
//	IMP005 - No records parsed: every row was skipped
//	IMP006 - Unknown dialect: the requested dialect is not registered
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          Patterns: "file too large", "request body too large"
//	FILE002 - No file                 Patterns: "no file provided"
//	FILE003 - Unsupported file type   Patterns: "unsupported file type"
//	FILE004 - Unreadable input        Patterns: "read input"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key             Patterns: "duplicate key"
//	DB002 - Unique constraint         Patterns: "unique constraint", "violates unique"
//	DB003 - Connection refused        Patterns: "connection refused"
//	DB004 - Connection reset          Patterns: "connection reset"
//	DB005 - Timeout                   Patterns: "timeout"
//	DB006 - Deadlock / busy           Patterns: "deadlock", "database is locked"
//	DB007 - Not found                 errors.Is(err, ErrNotFound)
//
// # Import Slot Errors (UPL001-UPL099)
//
//	UPL001 - System busy              errors.Is(err, ErrTooManyImports)
//	UPL002 - Request cancelled        Patterns: "context canceled"
//	UPL003 - Request timeout          Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests       Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// Sentinel errors are checked first. Patterns are then matched
// case-insensitively with strings.Contains and the first match wins, so
// specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/charimport/internal/ingest"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ingest.ErrEmptyInput, UserMessage{
		Message: "The import payload is empty",
		Action:  "Export or paste the data again",
		Code:    "IMP001",
	}},
	{ingest.ErrEmptyHeader, UserMessage{
		Message: "The header row has no usable column names",
		Action:  "Add a header row such as name,description,tags",
		Code:    "IMP002",
	}},
	{ingest.ErrTooFewRows, UserMessage{
		Message: "The file needs a header row and at least one data row",
		Action:  "Check for blank lines at the start or end of the file",
		Code:    "IMP003",
	}},
	{ingest.ErrInvalidJSONShape, UserMessage{
		Message: "The JSON payload must be an array of objects",
		Action:  `Wrap the records in an array: [{"name": "..."}]`,
		Code:    "IMP004",
	}},
	{ingest.ErrNoRecordsParsed, UserMessage{
		Message: "No rows could be imported",
		Action:  "Review the skipped rows in the report and fix the dominant problem",
		Code:    "IMP005",
	}},
	{ErrUnknownDialect, UserMessage{
		Message: "Unknown import dialect",
		Action:  "Use one of the dialects listed by /api/dialects, or auto",
		Code:    "IMP006",
	}},
	{ErrNotFound, UserMessage{
		Message: "The requested record does not exist",
		Action:  "Check the id and try again",
		Code:    "DB007",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum import size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgUnique = UserMessage{
		Message: "A duplicate value was found",
		Action:  "Review your data for duplicate ids",
		Code:    "DB002",
	}
	msgBusy = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB006",
	}
)

var errorPatterns = []errorPattern{
	{"file too large", msgFileTooLarge},
	{"request body too large", msgFileTooLarge},
	{"no file provided", UserMessage{
		Message: "No file was provided",
		Action:  "Attach a file in the file field or send it as the request body",
		Code:    "FILE002",
	}},
	{"unsupported file type", UserMessage{
		Message: "This file type cannot be imported",
		Action:  "Use a .csv, .tsv, .txt or .json file",
		Code:    "FILE003",
	}},
	{"read input", UserMessage{
		Message: "The file could not be read",
		Action:  "Upload the file again",
		Code:    "FILE004",
	}},

	{"duplicate key", UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Import the file again to generate fresh ids",
		Code:    "DB001",
	}},
	{"unique constraint", msgUnique},
	{"violates unique", msgUnique},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB003",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB004",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "DB005",
	}},
	{"deadlock", msgBusy},
	{"database is locked", msgBusy},

	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "UPL003",
	}},

	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unknown
// errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
	// Hints are remediation steps for fatal ingestion failures.
	Hints []string
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError, attaching ingestion remediation
// hints when err is an ingest failure. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
		Hints:     ingest.Remediation(err),
	}
}
