package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caesium-cloud/batch/internal/jobdef/testutil"
	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type UnitOfWorkSuite struct {
	suite.Suite
	newUoW func(t *testing.T) UnitOfWork
	uow    UnitOfWork
	ctx    context.Context
	base   time.Time
}

func TestMemoryUnitOfWork(t *testing.T) {
	suite.Run(t, &UnitOfWorkSuite{newUoW: func(*testing.T) UnitOfWork {
		return NewMemoryUnitOfWork()
	}})
}

func TestGormUnitOfWork(t *testing.T) {
	suite.Run(t, &UnitOfWorkSuite{newUoW: func(t *testing.T) UnitOfWork {
		db := testutil.OpenTestDB(t)
		t.Cleanup(func() { testutil.CloseDB(db) })
		return NewGormUnitOfWork(db)
	}})
}

func (s *UnitOfWorkSuite) SetupTest() {
	s.uow = s.newUoW(s.T())
	s.ctx = context.Background()
	s.base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *UnitOfWorkSuite) commit(fn func(Tx) error) {
	s.Require().NoError(Do(s.ctx, s.uow, func(tx Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	}))
}

func (s *UnitOfWorkSuite) addBatch(ts time.Time, running bool) *models.Batch {
	return s.addNamedBatch("", ts, running)
}

func (s *UnitOfWorkSuite) addNamedBatch(name string, ts time.Time, running bool) *models.Batch {
	b := &models.Batch{ID: uuid.New(), Name: name, Running: running, Timestamp: ts, Result: result.Success()}
	s.commit(func(tx Tx) error { return tx.AddBatch(b) })
	return b
}

func (s *UnitOfWorkSuite) addJobResult(batchID uuid.UUID, name string, res result.Result, ts time.Time) *models.JobResult {
	id := uuid.New()
	jr := &models.JobResult{
		ID:              id,
		BatchID:         batchID,
		JobName:         name,
		Result:          res,
		ExecutionMillis: 12,
		Timestamp:       ts,
		TestResults: []*models.JobTestResult{
			{ID: uuid.New(), JobResultID: id, TestName: "rows", Result: result.Success(), Timestamp: ts},
		},
	}
	s.commit(func(tx Tx) error { return tx.AddJobResult(jr) })
	return jr
}

func (s *UnitOfWorkSuite) TestLatestEmpty() {
	s.commit(func(tx Tx) error {
		latest, err := tx.Latest()
		s.Require().NoError(err)
		s.Nil(latest)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestLatestReturnsNewestWithResults() {
	first := s.addBatch(s.base, false)
	second := s.addBatch(s.base.Add(time.Minute), true)
	s.addJobResult(second.ID, "extract", result.Success(), s.base.Add(2*time.Minute))
	s.addJobResult(first.ID, "extract", result.Success(), s.base.Add(30*time.Second))

	s.commit(func(tx Tx) error {
		latest, err := tx.Latest()
		s.Require().NoError(err)
		s.Require().NotNil(latest)
		s.Equal(second.ID, latest.ID)
		s.True(latest.Running)
		s.Require().Len(latest.JobResults, 1)
		s.Equal("extract", latest.JobResults[0].JobName)
		s.Require().Len(latest.JobResults[0].TestResults, 1)
		s.Equal("rows", latest.JobResults[0].TestResults[0].TestName)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestUpdateBatch() {
	b := s.addBatch(s.base, true)

	b.Running = false
	b.ExecutionMillis = 1500
	b.Result = result.Failure("partial")
	b.Timestamp = s.base.Add(time.Hour)
	s.commit(func(tx Tx) error { return tx.UpdateBatch(b) })

	s.commit(func(tx Tx) error {
		got, err := tx.GetBatch(b.ID)
		s.Require().NoError(err)
		s.False(got.Running)
		s.Equal(int64(1500), got.ExecutionMillis)
		s.Equal(result.Failure("partial"), got.Result)
		s.True(got.Timestamp.Equal(s.base.Add(time.Hour)))
		return nil
	})
}

func (s *UnitOfWorkSuite) TestUpdateMissingBatch() {
	err := Do(s.ctx, s.uow, func(tx Tx) error {
		if err := tx.UpdateBatch(&models.Batch{ID: uuid.New(), Timestamp: s.base}); err != nil {
			return err
		}
		return tx.Commit()
	})
	s.True(errors.Is(err, ErrNotFound))
}

func (s *UnitOfWorkSuite) TestGetBatchNotFound() {
	s.commit(func(tx Tx) error {
		_, err := tx.GetBatch(uuid.New())
		s.True(errors.Is(err, ErrNotFound))
		return nil
	})
}

func (s *UnitOfWorkSuite) TestLastSuccessfulTimestampIgnoresFailures() {
	b := s.addBatch(s.base, false)
	s.addJobResult(b.ID, "load", result.Success(), s.base.Add(time.Minute))
	s.addJobResult(b.ID, "load", result.Failure("down"), s.base.Add(5*time.Minute))
	s.addJobResult(b.ID, "other", result.Success(), s.base.Add(10*time.Minute))

	s.commit(func(tx Tx) error {
		ts, err := tx.LastSuccessfulTimestamp("", "load")
		s.Require().NoError(err)
		s.Require().NotNil(ts)
		s.True(ts.Equal(s.base.Add(time.Minute)))

		ts, err = tx.LastSuccessfulTimestamp("", "never")
		s.Require().NoError(err)
		s.Nil(ts)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestNamedBatchesAreIsolated() {
	nightly := s.addNamedBatch("nightly", s.base, false)
	s.addJobResult(nightly.ID, "extract", result.Success(), s.base.Add(time.Minute))
	hourly := s.addNamedBatch("hourly", s.base.Add(time.Hour), false)
	s.addJobResult(hourly.ID, "extract", result.Success(), s.base.Add(61*time.Minute))

	s.commit(func(tx Tx) error {
		latest, err := tx.LatestNamed("nightly")
		s.Require().NoError(err)
		s.Require().NotNil(latest)
		s.Equal(nightly.ID, latest.ID)
		s.Equal("nightly", latest.Name)

		latest, err = tx.LatestNamed("weekly")
		s.Require().NoError(err)
		s.Nil(latest)

		latest, err = tx.Latest()
		s.Require().NoError(err)
		s.Equal(hourly.ID, latest.ID)

		ts, err := tx.LastSuccessfulTimestamp("nightly", "extract")
		s.Require().NoError(err)
		s.Require().NotNil(ts)
		s.True(ts.Equal(s.base.Add(time.Minute)))

		ts, err = tx.LastSuccessfulTimestamp("weekly", "extract")
		s.Require().NoError(err)
		s.Nil(ts)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestRollbackDiscardsWrites() {
	err := Do(s.ctx, s.uow, func(tx Tx) error {
		if err := tx.AddBatch(&models.Batch{ID: uuid.New(), Timestamp: s.base}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.EqualError(err, "abort")

	s.commit(func(tx Tx) error {
		latest, err := tx.Latest()
		s.Require().NoError(err)
		s.Nil(latest)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestUncommittedWithoutError() {
	s.Require().NoError(Do(s.ctx, s.uow, func(tx Tx) error {
		return tx.AddBatch(&models.Batch{ID: uuid.New(), Timestamp: s.base})
	}))

	s.commit(func(tx Tx) error {
		batches, err := tx.ListBatches(0)
		s.Require().NoError(err)
		s.Empty(batches)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestListBatchesNewestFirst() {
	a := s.addBatch(s.base, false)
	b := s.addBatch(s.base.Add(time.Minute), false)
	c := s.addBatch(s.base.Add(2*time.Minute), false)

	s.commit(func(tx Tx) error {
		all, err := tx.ListBatches(0)
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal([]uuid.UUID{c.ID, b.ID, a.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

		limited, err := tx.ListBatches(2)
		s.Require().NoError(err)
		s.Len(limited, 2)
		s.Equal(c.ID, limited[0].ID)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestPruneBefore() {
	old := s.addBatch(s.base, false)
	s.addJobResult(old.ID, "extract", result.Success(), s.base)
	running := s.addBatch(s.base, true)
	recent := s.addBatch(s.base.Add(48*time.Hour), false)

	var pruned int64
	s.commit(func(tx Tx) error {
		var err error
		pruned, err = tx.PruneBefore(s.base.Add(24 * time.Hour))
		return err
	})
	s.Equal(int64(1), pruned)

	s.commit(func(tx Tx) error {
		_, err := tx.GetBatch(old.ID)
		s.True(errors.Is(err, ErrNotFound))

		_, err = tx.GetBatch(running.ID)
		s.NoError(err)
		_, err = tx.GetBatch(recent.ID)
		s.NoError(err)

		ts, err := tx.LastSuccessfulTimestamp("", "extract")
		s.Require().NoError(err)
		s.Nil(ts)
		return nil
	})
}

func (s *UnitOfWorkSuite) TestLoggingPersistsEntries() {
	batchID := uuid.New()
	jobID := uuid.New()
	logging := NewLogging(s.uow, nil)

	logging.Batch(s.ctx, batchID).Info("starting batch", "jobs", 2)
	logging.Job(s.ctx, batchID, jobID, "extract").Error("job failed", "error", errors.New("boom"))

	entries := s.logEntries()
	s.Require().Len(entries, 2)

	byMessage := map[string]*models.LogEntry{}
	for _, e := range entries {
		byMessage[e.Message] = e
	}

	batchEntry := byMessage["starting batch"]
	s.Require().NotNil(batchEntry)
	s.Equal(models.LogLevelInfo, batchEntry.Level)
	s.Nil(batchEntry.JobResultID)

	jobEntry := byMessage["job failed"]
	s.Require().NotNil(jobEntry)
	s.Equal(models.LogLevelError, jobEntry.Level)
	s.Equal("extract", jobEntry.JobName)
	s.Require().NotNil(jobEntry.JobResultID)
	s.Equal(jobID, *jobEntry.JobResultID)
	s.Equal("boom", jobEntry.Fields["error"])
}

func (s *UnitOfWorkSuite) TestLogEntriesByBatch() {
	batchID := uuid.New()
	other := uuid.New()
	for i, id := range []uuid.UUID{batchID, other, batchID} {
		entry := &models.LogEntry{
			ID:        uuid.New(),
			BatchID:   id,
			Level:     models.LogLevelInfo,
			Message:   "line",
			Timestamp: s.base.Add(time.Duration(2-i) * time.Second),
		}
		s.commit(func(tx Tx) error { return tx.AddLogEntry(entry) })
	}

	s.commit(func(tx Tx) error {
		entries, err := tx.LogEntries(batchID)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.True(entries[0].Timestamp.Before(entries[1].Timestamp))

		entries, err = tx.LogEntries(uuid.New())
		s.Require().NoError(err)
		s.Empty(entries)
		return nil
	})
}

func (s *UnitOfWorkSuite) logEntries() []*models.LogEntry {
	switch uow := s.uow.(type) {
	case *MemoryUnitOfWork:
		return uow.LogEntries()
	case *GormUnitOfWork:
		var entries []*models.LogEntry
		s.Require().NoError(uow.DB().Find(&entries).Error)
		return entries
	default:
		s.FailNow("unknown unit of work")
		return nil
	}
}

func TestFieldsOddLength(t *testing.T) {
	got := fields([]interface{}{"a", 1, "dangling"})
	require.Equal(t, 1, got["a"])
	v, ok := got["dangling"]
	require.True(t, ok)
	require.Nil(t, v)
	require.Nil(t, fields(nil))
}
