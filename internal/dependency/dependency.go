// Package dependency validates the declared ordering of a batch's jobs.
//
// The checker never reorders anything. It only reports, per job, which
// dependencies are absent from the batch and which ones appear later in the
// caller's ordering than the job that needs them.
package dependency

import (
	"fmt"
	"strings"

	"github.com/caesium-cloud/batch/internal/job"
	"go.uber.org/multierr"
)

// Errors describes everything wrong with one job's dependencies.
type Errors struct {
	JobName string
	// Missing lists dependencies that name no job in the batch.
	Missing []string
	// OutOfOrder lists dependencies present in the batch but positioned
	// after the job.
	OutOfOrder []string
	// Duplicate is set when another job earlier in the batch already uses
	// this name.
	Duplicate bool
}

func (e Errors) Error() string {
	var parts []string
	if e.Duplicate {
		parts = append(parts, "duplicate job name")
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing dependencies ["+strings.Join(e.Missing, ", ")+"]")
	}
	if len(e.OutOfOrder) > 0 {
		parts = append(parts, "dependencies out of order ["+strings.Join(e.OutOfOrder, ", ")+"]")
	}
	return fmt.Sprintf("job %s: %s", e.JobName, strings.Join(parts, "; "))
}

func (e Errors) empty() bool {
	return !e.Duplicate && len(e.Missing) == 0 && len(e.OutOfOrder) == 0
}

// Check returns one Errors per job whose dependencies are invalid, in the
// order the jobs were given. A valid sequence yields an empty slice.
func Check(jobs []job.Job) []Errors {
	present := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		present[j.Spec().Name] = struct{}{}
	}

	out := make([]Errors, 0)
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		spec := j.Spec()
		e := Errors{JobName: spec.Name}

		if _, dup := seen[spec.Name]; dup {
			e.Duplicate = true
		}

		for _, dep := range spec.Dependencies {
			if _, ok := present[dep]; !ok {
				e.Missing = append(e.Missing, dep)
				continue
			}
			if _, ok := seen[dep]; !ok {
				e.OutOfOrder = append(e.OutOfOrder, dep)
			}
		}

		seen[spec.Name] = struct{}{}
		if !e.empty() {
			out = append(out, e)
		}
	}
	return out
}

// Error is returned by the batch runner when a batch is rejected before
// anything was persisted.
type Error struct {
	Jobs []Errors
}

// NewError returns nil when errs is empty.
func NewError(errs []Errors) *Error {
	if len(errs) == 0 {
		return nil
	}
	return &Error{Jobs: errs}
}

func (e *Error) Error() string {
	combined := e.Unwrap()
	if combined == nil {
		return "invalid job dependencies"
	}
	return "invalid job dependencies: " + combined.Error()
}

// Unwrap exposes each job's record as a combined multierr error.
func (e *Error) Unwrap() error {
	var combined error
	for _, je := range e.Jobs {
		combined = multierr.Append(combined, je)
	}
	return combined
}
