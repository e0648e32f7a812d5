package history

import (
	"context"
	"errors"
	"time"

	"github.com/caesium-cloud/batch/internal/models"
	"github.com/caesium-cloud/batch/internal/result"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUnitOfWork is a UnitOfWork backed by a gorm database. Each Begin
// opens one database transaction.
type GormUnitOfWork struct {
	db *gorm.DB
}

func NewGormUnitOfWork(conn *gorm.DB) *GormUnitOfWork {
	if conn == nil {
		panic("history unit of work requires a database connection")
	}
	return &GormUnitOfWork{db: conn}
}

// DB exposes the underlying connection.
func (u *GormUnitOfWork) DB() *gorm.DB {
	return u.db
}

func (u *GormUnitOfWork) Begin(ctx context.Context) (Tx, error) {
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{tx: tx}, nil
}

type gormTx struct {
	tx   *gorm.DB
	done bool
}

func (t *gormTx) withResults() *gorm.DB {
	return t.tx.
		Preload("JobResults", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Preload("JobResults.TestResults", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		})
}

func (t *gormTx) Latest() (*models.Batch, error) {
	return t.latest(t.withResults())
}

func (t *gormTx) LatestNamed(name string) (*models.Batch, error) {
	return t.latest(t.withResults().Where("name = ?", name))
}

func (t *gormTx) latest(q *gorm.DB) (*models.Batch, error) {
	var batches []*models.Batch
	if err := q.Order("timestamp DESC").Limit(1).Find(&batches).Error; err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	return batches[0], nil
}

func (t *gormTx) GetBatch(id uuid.UUID) (*models.Batch, error) {
	var b models.Batch
	err := t.withResults().First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *gormTx) ListBatches(limit int) ([]*models.Batch, error) {
	q := t.withResults().Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var batches []*models.Batch
	if err := q.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (t *gormTx) LastSuccessfulTimestamp(batchName, jobName string) (*time.Time, error) {
	var results []models.JobResult
	err := t.tx.
		Model(&models.JobResult{}).
		Select("job_results.timestamp").
		Joins("JOIN batches ON batches.id = job_results.batch_id").
		Where("batches.name = ? AND job_results.job_name = ? AND job_results.result_status = ?",
			batchName, jobName, result.StatusSuccess).
		Order("job_results.timestamp DESC").
		Limit(1).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ts := results[0].Timestamp
	return &ts, nil
}

func (t *gormTx) AddBatch(b *models.Batch) error {
	b.Result = b.Result.Normalize()
	return t.tx.Omit(clause.Associations).Create(b).Error
}

func (t *gormTx) UpdateBatch(b *models.Batch) error {
	b.Result = b.Result.Normalize()
	res := t.tx.Model(&models.Batch{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"execution_millis": b.ExecutionMillis,
			"result_status":    b.Result.Status,
			"result_message":   b.Result.Message,
			"running":          b.Running,
			"timestamp":        b.Timestamp,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) AddJobResult(jr *models.JobResult) error {
	jr.Result = jr.Result.Normalize()
	for _, tr := range jr.TestResults {
		tr.Result = tr.Result.Normalize()
	}
	return t.tx.Create(jr).Error
}

func (t *gormTx) AddLogEntry(entry *models.LogEntry) error {
	return t.tx.Create(entry).Error
}

func (t *gormTx) LogEntries(batchID uuid.UUID) ([]*models.LogEntry, error) {
	entries := make([]*models.LogEntry, 0)
	if err := t.tx.Where("batch_id = ?", batchID).Order("timestamp ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *gormTx) PruneBefore(cutoff time.Time) (int64, error) {
	var batchIDs []uuid.UUID
	if err := t.tx.Model(&models.Batch{}).
		Where("timestamp < ? AND running = ?", cutoff, false).
		Pluck("id", &batchIDs).Error; err != nil {
		return 0, err
	}
	if len(batchIDs) == 0 {
		return 0, nil
	}

	var jobResultIDs []uuid.UUID
	if err := t.tx.Model(&models.JobResult{}).
		Where("batch_id IN ?", batchIDs).
		Pluck("id", &jobResultIDs).Error; err != nil {
		return 0, err
	}

	if len(jobResultIDs) > 0 {
		if err := t.tx.Where("job_result_id IN ?", jobResultIDs).Delete(&models.JobTestResult{}).Error; err != nil {
			return 0, err
		}
	}
	if err := t.tx.Where("batch_id IN ?", batchIDs).Delete(&models.JobResult{}).Error; err != nil {
		return 0, err
	}
	if err := t.tx.Where("batch_id IN ?", batchIDs).Delete(&models.LogEntry{}).Error; err != nil {
		return 0, err
	}

	res := t.tx.Where("id IN ?", batchIDs).Delete(&models.Batch{})
	return res.RowsAffected, res.Error
}

func (t *gormTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback().Error
}
