package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventTaskNew            = "task_new"
	EventTaskDone           = "task_done"
	EventTaskFail           = "task_fail"
	EventTaskCancelRejected = "task_cancel_rejected"
	EventSessionNew         = "session_new"
	EventPaymentStart       = "payment_start"
	EventPaymentSettled     = "payment_settled"
	EventPaymentFree        = "payment_free"
	EventPaymentFail        = "payment_fail"
	EventWalletSet          = "wallet_set"
	EventWalletDel          = "wallet_del"
)

// PaymentEvents lists the event types that make up payment history.
var PaymentEvents = []string{EventPaymentStart, EventPaymentSettled, EventPaymentFree, EventPaymentFail}

type Entry struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_audit_timestamp" json:"timestamp"`
	EventType string    `gorm:"column:event_type;not null;index:idx_audit_event" json:"event_type"`
	TaskID    string    `gorm:"column:task_id;not null;default:''" json:"task_id,omitempty"`
	ContextID string    `gorm:"column:context_id;not null;default:''" json:"context_id,omitempty"`
	Actor     string    `gorm:"column:actor;not null;default:''" json:"actor,omitempty"`
	Detail    string    `gorm:"column:detail;not null;default:''" json:"detail,omitempty"`
}

func (Entry) TableName() string {
	return "audit_log"
}

type Logger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) (*Logger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: running migrations: %w", err)
	}

	return &Logger{db: db, now: time.Now}, nil
}

// Log records one event. detail may be a string or any JSON-encodable value.
func (l *Logger) Log(ctx context.Context, eventType, taskID, contextID, actor string, detail any) error {
	var detailStr string
	switch v := detail.(type) {
	case nil:
	case string:
		detailStr = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			detailStr = fmt.Sprintf("%v", v)
		} else {
			detailStr = string(b)
		}
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		EventType: eventType,
		TaskID:    taskID,
		ContextID: contextID,
		Actor:     actor,
		Detail:    detailStr,
	}

	return l.db.WithContext(ctx).Create(entry).Error
}

func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := l.db.WithContext(ctx)

	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if len(f.EventTypes) > 0 {
		q = q.Where("event_type IN ?", f.EventTypes)
	}
	if f.TaskID != "" {
		q = q.Where("task_id = ?", f.TaskID)
	}
	if f.ContextID != "" {
		q = q.Where("context_id = ?", f.ContextID)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp <= ?", f.Until)
	}

	q = q.Order("timestamp DESC")

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var entries []Entry
	err := q.Find(&entries).Error
	return entries, err
}

// Payments returns the most recent payment events, newest first.
func (l *Logger) Payments(ctx context.Context, limit int) ([]Entry, error) {
	return l.Query(ctx, Filter{EventTypes: PaymentEvents, Limit: limit})
}

// Prune deletes entries older than cutoff.
func (l *Logger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&Entry{})
	return res.RowsAffected, res.Error
}

type Filter struct {
	EventType  string
	EventTypes []string
	TaskID     string
	ContextID  string
	Actor      string
	Since      time.Time
	Until      time.Time
	Limit      int
}
