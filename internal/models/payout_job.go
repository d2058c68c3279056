package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	JobWaiting   = "waiting"
	JobDelayed   = "delayed"
	JobActive    = "active"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// PayoutJob is a durable queue entry. ID is "payout-<payout id>" so a payout is enqueued at most once.
type PayoutJob struct {
	ID           string            `gorm:"primaryKey;size:64" json:"id"`
	PayoutID     string            `gorm:"size:36;not null;uniqueIndex" json:"payout_id"`
	MerchantID   string            `gorm:"size:36;not null" json:"merchant_id"`
	Provider     string            `gorm:"size:20;not null" json:"provider"`
	Payload      datatypes.JSONMap `json:"payload"`
	Priority     int               `gorm:"not null;default:5;index:idx_job_due,priority:3" json:"priority"`
	State        string            `gorm:"size:20;not null;index:idx_job_due,priority:1" json:"state"`
	RunAt        time.Time         `gorm:"not null;index:idx_job_due,priority:2" json:"run_at"`
	AttemptsMade int               `gorm:"not null;default:0" json:"attempts_made"`
	MaxAttempts  int               `gorm:"not null" json:"max_attempts"`
	Progress     int               `gorm:"not null;default:0" json:"progress"`
	LastError    string            `gorm:"size:1024" json:"last_error"`
	WorkerID     string            `gorm:"size:64" json:"worker_id"`
	HeartbeatAt  *time.Time        `json:"heartbeat_at"`
	ProcessedAt  *time.Time        `json:"processed_at"`
	FinishedAt   *time.Time        `json:"finished_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (PayoutJob) TableName() string {
	return "payout_jobs"
}

// QueueControl stores the single paused flag of the payout queue.
type QueueControl struct {
	Name      string    `gorm:"primaryKey;size:32"`
	Paused    bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

func (QueueControl) TableName() string {
	return "queue_controls"
}
