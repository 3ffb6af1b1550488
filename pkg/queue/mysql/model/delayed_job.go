package model

import "time"

// DelayedJob MySQL model for the delayed jobs table.
// Only the columns the autoscaler reads are mapped.
type DelayedJob struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Priority  int        `gorm:"column:priority;not null;default:0" json:"priority"`
	Attempts  int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Handler   string     `gorm:"column:handler;type:text;not null" json:"handler"`
	LastError string     `gorm:"column:last_error;type:text" json:"last_error"`
	RunAt     *time.Time `gorm:"column:run_at;type:datetime" json:"run_at"`
	LockedAt  *time.Time `gorm:"column:locked_at;type:datetime" json:"locked_at"`
	LockedBy  *string    `gorm:"column:locked_by;type:varchar(255)" json:"locked_by"`
	FailedAt  *time.Time `gorm:"column:failed_at;type:datetime" json:"failed_at"`
	Queue     string     `gorm:"column:queue;type:varchar(255);index:idx_queue_run_at,priority:1" json:"queue"`
	CreatedAt time.Time  `gorm:"column:created_at;type:datetime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:datetime" json:"updated_at"`
}

// TableName default table name, overridable through config
func (DelayedJob) TableName() string {
	return "delayed_jobs"
}
