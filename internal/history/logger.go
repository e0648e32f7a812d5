package history

import (
	"context"
	"fmt"

	"github.com/caesium-cloud/batch/internal/clock"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Logging builds batch and job scoped loggers that write through zap and
// keep a copy of every line in the history.
type Logging struct {
	uow   UnitOfWork
	clock clock.Source
}

func NewLogging(uow UnitOfWork, clk clock.Source) *Logging {
	if uow == nil {
		panic("history logging requires a unit of work")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Logging{uow: uow, clock: clk}
}

// Batch returns the logger for a batch run.
func (l *Logging) Batch(ctx context.Context, batchID uuid.UUID) log.Logger {
	return &Logger{
		ctx:     ctx,
		uow:     l.uow,
		clock:   l.clock,
		batchID: batchID,
		zap:     log.Scoped("batch_id", batchID.String()),
	}
}

// Job returns the logger for one job within a batch run.
func (l *Logging) Job(ctx context.Context, batchID, jobID uuid.UUID, jobName string) log.Logger {
	id := jobID
	return &Logger{
		ctx:         ctx,
		uow:         l.uow,
		clock:       l.clock,
		batchID:     batchID,
		jobResultID: &id,
		jobName:     jobName,
		zap:         log.Scoped("batch_id", batchID.String(), "job_id", jobID.String(), "job", jobName),
	}
}

// Logger persists each entry in its own transaction. Persistence failures
// are reported through zap and never surface to the caller.
type Logger struct {
	ctx         context.Context
	uow         UnitOfWork
	clock       clock.Source
	batchID     uuid.UUID
	jobResultID *uuid.UUID
	jobName     string
	zap         log.Logger
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.zap.Info(msg, keysAndValues...)
	l.persist(models.LogLevelInfo, msg, keysAndValues)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.zap.Error(msg, keysAndValues...)
	l.persist(models.LogLevelError, msg, keysAndValues)
}

func (l *Logger) persist(level, msg string, keysAndValues []interface{}) {
	entry := &models.LogEntry{
		ID:          uuid.New(),
		BatchID:     l.batchID,
		JobResultID: l.jobResultID,
		JobName:     l.jobName,
		Level:       level,
		Message:     msg,
		Fields:      fields(keysAndValues),
		Timestamp:   l.clock.Now(),
	}

	err := Do(l.ctx, l.uow, func(tx Tx) error {
		if err := tx.AddLogEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		log.Warn("failed to persist log entry", "batch_id", l.batchID, "message", msg, "error", err)
	}
}

func fields(keysAndValues []interface{}) datatypes.JSONMap {
	if len(keysAndValues) == 0 {
		return nil
	}

	out := make(datatypes.JSONMap, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 >= len(keysAndValues) {
			out[key] = nil
			break
		}

		switch v := keysAndValues[i+1].(type) {
		case error:
			out[key] = v.Error()
		case fmt.Stringer:
			out[key] = v.String()
		default:
			out[key] = v
		}
	}
	return out
}
