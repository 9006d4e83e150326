// Package store persists chat messages and user profiles.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const maxHistory = 200

// SQLStore implements core.MessageStore on gorm.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	if path == "" {
		path = "./data/chat.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Migrate() error {
	if err := s.db.AutoMigrate(&UserRecord{}, &MessageRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUser creates or replaces a profile.
func (s *SQLStore) UpsertUser(ctx context.Context, u domain.User) error {
	rec := UserRecord{ID: string(u.ID), DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupUserProfile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rec UserRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	u := rec.toDomain()
	return &u, nil
}

// PersistMessage assigns the id and timestamp and returns the stored form
// with the author's current profile.
func (s *SQLStore) PersistMessage(ctx context.Context, room domain.RoomID, uid domain.UserID, content string) (*domain.ChatMessage, error) {
	var out domain.ChatMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var author UserRecord
		if err := tx.First(&author, "id = ?", string(uid)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUserNotFound
			}
			return err
		}
		rec := MessageRecord{
			ID:        ulid.Make().String(),
			RoomID:    string(room),
			UserID:    author.ID,
			Content:   content,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Omit("User").Create(&rec).Error; err != nil {
			return err
		}
		rec.User = author
		out = rec.toDomain()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	return &out, nil
}

// RecentMessages returns up to limit messages of room, oldest first.
func (s *SQLStore) RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	var recs []MessageRecord
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", string(room)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]domain.ChatMessage, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r.toDomain()
	}
	return out, nil
}
