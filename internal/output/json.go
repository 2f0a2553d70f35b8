package output

import (
	"encoding/json"
	"io"
)

// ErrorCode represents a machine-readable error classification.
type ErrorCode string

// Error code constants.
const (
	ErrGeneral    ErrorCode = "GENERAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrMapping    ErrorCode = "MAPPING_ERROR"
)

// Exit code constants.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitNotFound   = 2
	ExitValidation = 3
	ExitMapping    = 4
)

// ExitCodeForError maps an ErrorCode to its corresponding exit code.
func ExitCodeForError(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return ExitNotFound
	case ErrValidation:
		return ExitValidation
	case ErrMapping:
		return ExitMapping
	default:
		return ExitGeneral
	}
}

type successEnvelope struct {
	OK       bool     `json:"ok"`
	Data     any      `json:"data"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// errorEnvelope carries the partial result of a failed run in Data, such
// as a load report with its resume point.
type errorEnvelope struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Code     ErrorCode `json:"code"`
	Data     any       `json:"data,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}

func writeJSONSuccess(w io.Writer, env successEnvelope) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(env)
}

func writeJSONError(w io.Writer, env errorEnvelope) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(env)
}
