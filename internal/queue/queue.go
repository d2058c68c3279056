// Package queue is the durable payout job queue. Jobs live in the payout_jobs table so they survive
// restarts, and workers claim them with conditional updates so a job runs on one worker at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boohpay/config"
	"boohpay/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10

	controlName = "payouts"
)

var (
	ErrJobNotFound    = errors.New("payout job not found")
	ErrNotCancellable = errors.New("only waiting or delayed jobs can be cancelled")
	ErrNotRetryable   = errors.New("only failed jobs can be retried")
)

type EnqueueOptions struct {
	Priority int
	RunAt    time.Time
	Payload  map[string]any
}

type PayoutQueue struct {
	db          *gorm.DB
	maxAttempts int
	backoffBase time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewPayoutQueue(db *gorm.DB, cfg config.PayoutQueueConfig, log *zap.Logger) *PayoutQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	return &PayoutQueue{
		db:          db,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		log:         log.Named("payout_queue"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func JobID(payoutID string) string {
	return "payout-" + payoutID
}

// Enqueue adds a job for the payout. Enqueueing the same payout twice returns the existing job.
func (q *PayoutQueue) Enqueue(ctx context.Context, p *models.Payout, opts EnqueueOptions) (*models.PayoutJob, error) {
	return q.enqueue(ctx, q.db, p, opts)
}

// EnqueueTx is Enqueue inside the caller's transaction.
func (q *PayoutQueue) EnqueueTx(ctx context.Context, tx *gorm.DB, p *models.Payout, opts EnqueueOptions) (*models.PayoutJob, error) {
	return q.enqueue(ctx, tx, p, opts)
}

func (q *PayoutQueue) enqueue(ctx context.Context, db *gorm.DB, p *models.Payout, opts EnqueueOptions) (*models.PayoutJob, error) {
	now := q.now()
	if opts.Priority <= 0 {
		opts.Priority = PriorityNormal
	}
	state := models.JobWaiting
	runAt := now
	if opts.RunAt.After(now) {
		state = models.JobDelayed
		runAt = opts.RunAt.UTC()
	}
	job := &models.PayoutJob{
		ID:          JobID(p.ID),
		PayoutID:    p.ID,
		MerchantID:  p.MerchantID,
		Provider:    p.Provider,
		Payload:     datatypes.JSONMap(opts.Payload),
		Priority:    opts.Priority,
		State:       state,
		RunAt:       runAt,
		MaxAttempts: q.maxAttempts,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(job)
	if res.Error != nil {
		return nil, fmt.Errorf("enqueue payout %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		q.log.Debug("payout already queued", zap.String("payout_id", p.ID))
		var existing models.PayoutJob
		if err := db.WithContext(ctx).First(&existing, "id = ?", job.ID).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	return job, nil
}

func (q *PayoutQueue) Get(ctx context.Context, payoutID string) (*models.PayoutJob, error) {
	var job models.PayoutJob
	err := q.db.WithContext(ctx).First(&job, "id = ?", JobID(payoutID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type JobStatus struct {
	JobID        string     `json:"jobId"`
	State        string     `json:"state"`
	Progress     int        `json:"progress"`
	AttemptsMade int        `json:"attemptsMade"`
	FailedReason string     `json:"failedReason,omitempty"`
	ProcessedOn  *time.Time `json:"processedOn,omitempty"`
	FinishedOn   *time.Time `json:"finishedOn,omitempty"`
}

func (q *PayoutQueue) Status(ctx context.Context, payoutID string) (*JobStatus, error) {
	job, err := q.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	return &JobStatus{
		JobID:        job.ID,
		State:        job.State,
		Progress:     job.Progress,
		AttemptsMade: job.AttemptsMade,
		FailedReason: job.LastError,
		ProcessedOn:  job.ProcessedAt,
		FinishedOn:   job.FinishedAt,
	}, nil
}

// Cancel moves a waiting or delayed job to cancelled. Active jobs cannot be interrupted.
func (q *PayoutQueue) Cancel(ctx context.Context, payoutID string) error {
	return q.CancelTx(ctx, q.db, payoutID)
}

func (q *PayoutQueue) CancelTx(ctx context.Context, tx *gorm.DB, payoutID string) error {
	now := q.now()
	res := tx.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("id = ? AND state IN ?", JobID(payoutID), []string{models.JobWaiting, models.JobDelayed}).
		Updates(map[string]any{"state": models.JobCancelled, "finished_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		tx.WithContext(ctx).Model(&models.PayoutJob{}).Where("id = ?", JobID(payoutID)).Count(&n)
		if n == 0 {
			return ErrJobNotFound
		}
		return ErrNotCancellable
	}
	return nil
}

// Retry puts a failed job back in the queue with a fresh attempt budget.
func (q *PayoutQueue) Retry(ctx context.Context, payoutID string) error {
	res := q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("id = ? AND state = ?", JobID(payoutID), models.JobFailed).
		Updates(map[string]any{
			"state":         models.JobWaiting,
			"run_at":        q.now(),
			"attempts_made": 0,
			"progress":      0,
			"last_error":    "",
			"worker_id":     "",
			"finished_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := q.Get(ctx, payoutID); err != nil {
			return err
		}
		return ErrNotRetryable
	}
	return nil
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Paused    bool  `json:"paused"`
}

func (q *PayoutQueue) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		State string
		N     int64
	}
	err := q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Select("state, COUNT(*) AS n").Group("state").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	st := &Stats{}
	for _, r := range rows {
		switch r.State {
		case models.JobWaiting:
			st.Waiting = r.N
		case models.JobDelayed:
			st.Delayed = r.N
		case models.JobActive:
			st.Active = r.N
		case models.JobCompleted:
			st.Completed = r.N
		case models.JobFailed:
			st.Failed = r.N
		case models.JobCancelled:
			st.Cancelled = r.N
		}
	}
	if st.Paused, err = q.IsPaused(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Pending lists waiting and delayed jobs in the order workers will take them.
func (q *PayoutQueue) Pending(ctx context.Context, limit int) ([]models.PayoutJob, error) {
	return q.list(ctx, []string{models.JobWaiting, models.JobDelayed}, "priority ASC, run_at ASC", limit)
}

func (q *PayoutQueue) Failed(ctx context.Context, limit int) ([]models.PayoutJob, error) {
	return q.list(ctx, []string{models.JobFailed}, "finished_at DESC", limit)
}

func (q *PayoutQueue) list(ctx context.Context, states []string, order string, limit int) ([]models.PayoutJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var jobs []models.PayoutJob
	err := q.db.WithContext(ctx).Where("state IN ?", states).Order(order).Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (q *PayoutQueue) Pause(ctx context.Context) error  { return q.setPaused(ctx, true) }
func (q *PayoutQueue) Resume(ctx context.Context) error { return q.setPaused(ctx, false) }

func (q *PayoutQueue) setPaused(ctx context.Context, paused bool) error {
	return q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"paused", "updated_at"}),
	}).Create(&models.QueueControl{Name: controlName, Paused: paused, UpdatedAt: q.now()}).Error
}

func (q *PayoutQueue) IsPaused(ctx context.Context) (bool, error) {
	var c models.QueueControl
	err := q.db.WithContext(ctx).First(&c, "name = ?", controlName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return c.Paused, err
}

// CleanCompleted deletes completed and cancelled jobs that finished before now-olderThan.
func (q *PayoutQueue) CleanCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := q.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", []string{models.JobCompleted, models.JobCancelled}, q.now().Add(-olderThan)).
		Delete(&models.PayoutJob{})
	return res.RowsAffected, res.Error
}

// claim takes the next due job for workerID, or returns nil when there is none.
func (q *PayoutQueue) claim(ctx context.Context, workerID string) (*models.PayoutJob, error) {
	paused, err := q.IsPaused(ctx)
	if err != nil || paused {
		return nil, err
	}
	now := q.now()
	var ids []string
	err = q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("state IN ? AND run_at <= ?", []string{models.JobWaiting, models.JobDelayed}, now).
		Order("priority ASC, run_at ASC").Limit(5).Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		res := q.db.WithContext(ctx).Model(&models.PayoutJob{}).
			Where("id = ? AND state IN ? AND run_at <= ?", id, []string{models.JobWaiting, models.JobDelayed}, now).
			Updates(map[string]any{
				"state":         models.JobActive,
				"worker_id":     workerID,
				"heartbeat_at":  now,
				"processed_at":  now,
				"attempts_made": gorm.Expr("attempts_made + 1"),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			var job models.PayoutJob
			if err := q.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
				return nil, err
			}
			return &job, nil
		}
	}
	return nil, nil
}

func (q *PayoutQueue) heartbeat(ctx context.Context, jobID, workerID string) error {
	return q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("id = ? AND worker_id = ? AND state = ?", jobID, workerID, models.JobActive).
		Update("heartbeat_at", q.now()).Error
}

func (q *PayoutQueue) setProgress(ctx context.Context, jobID string, pct int) error {
	return q.db.WithContext(ctx).Model(&models.PayoutJob{}).Where("id = ?", jobID).Update("progress", pct).Error
}

func (q *PayoutQueue) complete(ctx context.Context, jobID, workerID string) error {
	return q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("id = ? AND worker_id = ?", jobID, workerID).
		Updates(map[string]any{"state": models.JobCompleted, "progress": 100, "finished_at": q.now(), "last_error": ""}).Error
}

// Backoff is the wait before the attempt after attempt n: base × 2^(n-1).
func (q *PayoutQueue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.backoffBase << (attempt - 1)
}

// fail records a failed attempt. It reports true when the job has used its last attempt.
func (q *PayoutQueue) fail(ctx context.Context, job *models.PayoutJob, cause error) (bool, error) {
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	if job.AttemptsMade < job.MaxAttempts {
		err := q.db.WithContext(ctx).Model(&models.PayoutJob{}).Where("id = ?", job.ID).
			Updates(map[string]any{
				"state":      models.JobDelayed,
				"run_at":     q.now().Add(q.Backoff(job.AttemptsMade)),
				"last_error": msg,
				"worker_id":  "",
			}).Error
		return false, err
	}
	err := q.db.WithContext(ctx).Model(&models.PayoutJob{}).Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":       models.JobFailed,
			"last_error":  msg,
			"finished_at": q.now(),
		}).Error
	return true, err
}

// RecoverStalled returns active jobs whose heartbeat is older than timeout to the waiting state.
func (q *PayoutQueue) RecoverStalled(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := q.now().Add(-timeout)
	res := q.db.WithContext(ctx).Model(&models.PayoutJob{}).
		Where("state = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", models.JobActive, cutoff).
		Updates(map[string]any{"state": models.JobWaiting, "worker_id": "", "run_at": q.now()})
	return res.RowsAffected, res.Error
}
