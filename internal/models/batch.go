package models

import (
	"time"

	"github.com/caesium-cloud/batch/internal/result"
	"github.com/google/uuid"
)

// Batch is one complete orchestration run. It is persisted twice: once
// with Running set when the run starts, and again with its final state.
// Name scopes freshness and the previous-batch lookup so independent job
// sets sharing one history do not observe each other.
type Batch struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string        `gorm:"type:text;not null;default:'';index" json:"name"`
	ExecutionMillis int64         `gorm:"not null;default:0" json:"execution_millis"`
	Result          result.Result `gorm:"embedded;embeddedPrefix:result_" json:"result"`
	Running         bool          `gorm:"not null;index" json:"running"`
	Timestamp       time.Time     `gorm:"not null;index" json:"timestamp"`
	JobResults      []*JobResult  `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"job_results"`
}

// JobResult returns the result recorded for the named job, if any.
func (b *Batch) JobResult(name string) *JobResult {
	if b == nil {
		return nil
	}
	for _, jr := range b.JobResults {
		if jr != nil && jr.JobName == name {
			return jr
		}
	}
	return nil
}

// Failed lists the job results that failed, either in their run or in
// one of their tests.
func (b *Batch) Failed() []*JobResult {
	if b == nil {
		return nil
	}
	var failed []*JobResult
	for _, jr := range b.JobResults {
		if jr != nil && !jr.Succeeded() {
			failed = append(failed, jr)
		}
	}
	return failed
}

// JobResult is the outcome of one job within a batch. ExecutionMillis
// covers a single attempt including its tests.
type JobResult struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID         uuid.UUID        `gorm:"type:uuid;index;not null" json:"batch_id"`
	JobName         string           `gorm:"type:text;index;not null" json:"job_name"`
	TestResults     []*JobTestResult `gorm:"foreignKey:JobResultID;constraint:OnDelete:CASCADE" json:"test_results"`
	Result          result.Result    `gorm:"embedded;embeddedPrefix:result_" json:"result"`
	ExecutionMillis int64            `gorm:"not null;default:0" json:"execution_millis"`
	Timestamp       time.Time        `gorm:"not null;index" json:"timestamp"`
}

// Succeeded reports whether the run and every test succeeded.
func (jr *JobResult) Succeeded() bool {
	if jr == nil || jr.Result.IsFailure() {
		return false
	}
	for _, tr := range jr.TestResults {
		if tr != nil && tr.Result.IsFailure() {
			return false
		}
	}
	return true
}

// JobTestResult is the outcome of one post-run verification test.
type JobTestResult struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	JobResultID uuid.UUID     `gorm:"type:uuid;index;not null" json:"job_result_id"`
	TestName    string        `gorm:"type:text;not null" json:"test_name"`
	Result      result.Result `gorm:"embedded;embeddedPrefix:result_" json:"result"`
	Timestamp   time.Time     `gorm:"not null" json:"timestamp"`
}
