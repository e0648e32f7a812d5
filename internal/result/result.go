// Package result models the outcome of an expected operation. Jobs report
// business-level failure through a Result rather than an error; errors are
// reserved for faults that are worth retrying.
package result

import "fmt"

// Status enumerates the two variants of a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is a Success or a Failure carrying a message. The zero value is
// a Success, so a job that has nothing to report returns Result{}.
type Result struct {
	Status  Status `gorm:"type:text;not null;default:'success'" json:"status"`
	Message string `json:"message,omitempty"`
}

// Success returns a successful Result.
func Success() Result {
	return Result{Status: StatusSuccess}
}

// Failure returns a failed Result with the supplied message.
func Failure(message string) Result {
	return Result{Status: StatusFailure, Message: message}
}

// Failuref returns a failed Result with a formatted message.
func Failuref(format string, args ...interface{}) Result {
	return Failure(fmt.Sprintf(format, args...))
}

func (r Result) IsFailure() bool {
	return r.Status == StatusFailure
}

// Valid reports whether the Result is one of the two known variants.
// An empty status counts as Success.
func (r Result) Valid() bool {
	switch r.Status {
	case "", StatusSuccess, StatusFailure:
		return true
	default:
		return false
	}
}

// Normalize maps the zero value onto an explicit Success.
func (r Result) Normalize() Result {
	if r.Status == "" {
		return Success()
	}
	return r
}

func (r Result) String() string {
	if r.IsFailure() {
		return fmt.Sprintf("failure: %s", r.Message)
	}
	return string(StatusSuccess)
}
