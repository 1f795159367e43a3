// Package history archives finished scheduler tasks into SQLite so they
// stay queryable after the in-memory scheduler drops them.
package history

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/whisper-subtitle/database"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/scheduler"
)

// Migrations holds the history schema, applied by database.Component.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// DefaultLimit caps List when the query sets no limit.
const DefaultLimit = 100

// Record is one archived task.
type Record struct {
	ID           uint             `gorm:"primaryKey" json:"-"`
	TaskID       string           `gorm:"column:task_id" json:"task_id"`
	Name         string           `json:"name"`
	Kind         string           `json:"kind"`
	Status       scheduler.Status `json:"status"`
	ScheduleTime time.Time        `json:"schedule_time"`
	CreatedAt    time.Time        `gorm:"autoCreateTime:false" json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	RetryCount   int              `json:"retry_count"`
	MaxRetries   int              `json:"max_retries"`
	Error        string           `json:"error,omitempty"`
	Result       *string          `json:"result,omitempty"`
	ArchivedAt   time.Time        `json:"archived_at"`
}

// TableName pins the table created by the migrations.
func (Record) TableName() string { return "task_history" }

// Query filters List.
type Query struct {
	Status scheduler.Status
	Kind   string
	Limit  int
	Offset int
}

// Store is a scheduler.Archiver backed by SQLite.
type Store struct {
	db  *database.DB
	log *logger.Logger
	now func() time.Time
}

var _ scheduler.Archiver = (*Store)(nil)

// NewStore creates a store over an already migrated database.
func NewStore(db *database.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log.WithComponent("history"), now: time.Now}
}

// Archive inserts tasks in one transaction. Results that cannot be encoded
// as JSON are stored as their fmt representation.
func (s *Store) Archive(ctx context.Context, tasks []scheduler.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	now := s.now().UTC()
	records := make([]Record, len(tasks))
	for i, t := range tasks {
		records[i] = toRecord(t, now)
	}
	err := s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.CreateInBatches(&records, 100).Error
	})
	if err != nil {
		return database.FromDatabase(err, "task history")
	}
	s.log.Debug("tasks archived", logger.Fields("count", len(records)))
	return nil
}

// List returns archived tasks, newest completion first, and the total
// number of matching rows.
func (s *Store) List(ctx context.Context, q Query) ([]Record, int64, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	db := s.db.WithContext(ctx).Model(&Record{})
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.Kind != "" {
		db = db.Where("kind = ?", q.Kind)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, database.FromDatabase(err, "task history")
	}
	records := []Record{}
	err := db.Order("completed_at DESC").Order("id DESC").Limit(q.Limit).Offset(q.Offset).Find(&records).Error
	if err != nil {
		return nil, 0, database.FromDatabase(err, "task history")
	}
	return records, total, nil
}

// ByTaskID returns every archived run of a task id, newest first.
func (s *Store) ByTaskID(ctx context.Context, taskID string) ([]Record, error) {
	records := []Record{}
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id DESC").Find(&records).Error
	if err != nil {
		return nil, database.FromDatabase(err, "task history")
	}
	return records, nil
}

// Purge deletes records archived before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("archived_at < ?", cutoff.UTC()).Delete(&Record{})
	if res.Error != nil {
		return 0, database.FromDatabase(res.Error, "task history")
	}
	return res.RowsAffected, nil
}

func toRecord(t scheduler.Task, archivedAt time.Time) Record {
	r := Record{
		TaskID:       t.ID,
		Name:         t.Name,
		Kind:         t.Kind,
		Status:       t.Status,
		ScheduleTime: t.ScheduleTime,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		RetryCount:   t.RetryCount,
		MaxRetries:   t.MaxRetries,
		Error:        t.Error,
		ArchivedAt:   archivedAt,
	}
	if t.Result != nil {
		var s string
		if b, err := json.Marshal(t.Result); err == nil {
			s = string(b)
		} else {
			s = fmt.Sprintf("%v", t.Result)
		}
		r.Result = &s
	}
	return r
}
