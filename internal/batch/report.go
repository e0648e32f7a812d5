package batch

import (
	"fmt"
	"io"
	"sort"

	"github.com/caesium-cloud/batch/internal/models"
	"github.com/google/uuid"
)

// Change classifies how a job's outcome moved between two batches.
type Change string

const (
	// ChangeNew marks a job that ran now but not in the previous batch.
	ChangeNew Change = "new"
	// ChangeRecovered marks a job that failed before and succeeded now.
	ChangeRecovered Change = "recovered"
	// ChangeRegressed marks a job that succeeded before and failed now.
	ChangeRegressed Change = "regressed"
	// ChangeUnchanged marks a job whose outcome did not change.
	ChangeUnchanged Change = "unchanged"
	// ChangeSkipped marks a job that ran in the previous batch but not in
	// the current one, usually because it was still fresh.
	ChangeSkipped Change = "skipped"
)

// JobChange is one job's line in a Report. Current or Previous is nil when
// the job did not run in that batch.
type JobChange struct {
	JobName  string            `json:"job_name"`
	Change   Change            `json:"change"`
	Current  *models.JobResult `json:"current,omitempty"`
	Previous *models.JobResult `json:"previous,omitempty"`
}

// Succeeded reports whether the job succeeded in the current batch.
func (c JobChange) Succeeded() bool {
	return c.Current.Succeeded()
}

// Report summarises a Delta job by job.
type Report struct {
	BatchID         uuid.UUID      `json:"batch_id"`
	PreviousBatchID *uuid.UUID     `json:"previous_batch_id,omitempty"`
	Jobs            []JobChange    `json:"jobs"`
	Counts          map[Change]int `json:"counts"`
	// Failed names the current batch's jobs that failed, in run order.
	Failed []string `json:"failed"`
}

// Empty is true when the current batch ran no jobs.
func (r Report) Empty() bool {
	for _, c := range r.Jobs {
		if c.Current != nil {
			return false
		}
	}
	return true
}

// Report classifies every job of the current batch against the previous
// one. Jobs follow the current batch's run order, then skipped jobs sorted
// by name.
func (d *Delta) Report() Report {
	report := Report{Counts: make(map[Change]int)}
	if d == nil || d.Current == nil {
		return report
	}

	report.BatchID = d.Current.ID
	if d.Previous != nil {
		id := d.Previous.ID
		report.PreviousBatchID = &id
	}

	ran := make(map[string]struct{}, len(d.Current.JobResults))
	for _, jr := range d.Current.JobResults {
		if jr == nil {
			continue
		}
		ran[jr.JobName] = struct{}{}

		prev := d.Previous.JobResult(jr.JobName)
		change := classify(jr, prev)
		report.Jobs = append(report.Jobs, JobChange{
			JobName:  jr.JobName,
			Change:   change,
			Current:  jr,
			Previous: prev,
		})
		report.Counts[change]++
		if !jr.Succeeded() {
			report.Failed = append(report.Failed, jr.JobName)
		}
	}

	if d.Previous != nil {
		var skipped []JobChange
		for _, prev := range d.Previous.JobResults {
			if prev == nil {
				continue
			}
			if _, ok := ran[prev.JobName]; ok {
				continue
			}
			ran[prev.JobName] = struct{}{}
			skipped = append(skipped, JobChange{JobName: prev.JobName, Change: ChangeSkipped, Previous: prev})
		}
		sort.Slice(skipped, func(i, j int) bool { return skipped[i].JobName < skipped[j].JobName })
		report.Jobs = append(report.Jobs, skipped...)
		report.Counts[ChangeSkipped] += len(skipped)
	}

	return report
}

func classify(current, previous *models.JobResult) Change {
	switch {
	case previous == nil:
		return ChangeNew
	case current.Succeeded() == previous.Succeeded():
		return ChangeUnchanged
	case current.Succeeded():
		return ChangeRecovered
	default:
		return ChangeRegressed
	}
}

// Write prints the report in a human readable form.
func (r Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Batch %s\n", r.BatchID); err != nil {
		return err
	}
	if r.PreviousBatchID != nil {
		if _, err := fmt.Fprintf(w, "Compared to %s\n", *r.PreviousBatchID); err != nil {
			return err
		}
	}
	if len(r.Jobs) == 0 {
		_, err := fmt.Fprint(w, "No jobs ran.\n")
		return err
	}

	for _, c := range r.Jobs {
		var line string
		switch {
		case c.Current == nil:
			line = fmt.Sprintf("  - %s: %s\n", c.JobName, c.Change)
		case c.Current.Result.IsFailure():
			line = fmt.Sprintf("  - %s: %s (failed: %s, %dms)\n", c.JobName, c.Change, c.Current.Result.Message, c.Current.ExecutionMillis)
		case !c.Current.Succeeded():
			line = fmt.Sprintf("  - %s: %s (tests failed, %dms)\n", c.JobName, c.Change, c.Current.ExecutionMillis)
		default:
			line = fmt.Sprintf("  - %s: %s (%dms)\n", c.JobName, c.Change, c.Current.ExecutionMillis)
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%d new, %d recovered, %d regressed, %d unchanged, %d skipped, %d failed\n",
		r.Counts[ChangeNew],
		r.Counts[ChangeRecovered],
		r.Counts[ChangeRegressed],
		r.Counts[ChangeUnchanged],
		r.Counts[ChangeSkipped],
		len(r.Failed),
	)
	return err
}
