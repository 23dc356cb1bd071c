package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/surajcodesml/a2a/pkg/keyed"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Session is the unit of conversational continuity for one context id. It
// says nothing about which wallet pays.
type Session struct {
	ID        string    `gorm:"primaryKey;column:id"`
	AppName   string    `gorm:"column:app_name;not null;default:''"`
	UserID    string    `gorm:"column:user_id;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index:idx_sessions_updated"`
}

func (Session) TableName() string {
	return "sessions"
}

type Store struct {
	db    *gorm.DB
	locks *keyed.Mutex[string]
}

// Open opens (or creates) the sqlite database at dsn and migrates the
// session table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		closeDB(db)
		return nil, fmt.Errorf("store: enabling WAL mode: %w", err)
	}

	s, err := New(db)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}
	return &Store{db: db, locks: keyed.NewMutex[string]()}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetOrCreateSession returns the session for id, creating it on first use.
// Calls for the same id are serialized, so at most one session ever exists
// per id. created reports whether this call made it.
func (s *Store) GetOrCreateSession(ctx context.Context, id, appName, userID string) (sess *Session, created bool, err error) {
	if id == "" {
		return nil, false, fmt.Errorf("store: session id must not be empty")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.GetSession(ctx, id)
	if err == nil {
		now := time.Now().UTC()
		if err := s.db.WithContext(ctx).Model(existing).Update("updated_at", now).Error; err != nil {
			return nil, false, fmt.Errorf("store: touching session: %w", err)
		}
		existing.UpdatedAt = now
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("store: looking up session: %w", err)
	}

	now := time.Now().UTC()
	sess = &Session{ID: id, AppName: appName, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, false, fmt.Errorf("store: creating session: %w", err)
	}
	return sess, true, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []Session
	err := q.Find(&sessions).Error
	return sessions, err
}

func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Session{}).Count(&n).Error
	return n, err
}

// PruneSessions removes sessions idle since before cutoff.
func (s *Store) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&Session{})
	return res.RowsAffected, res.Error
}
