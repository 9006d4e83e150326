package store

import (
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
)

// UserRecord is the public profile row.
type UserRecord struct {
	ID          string `gorm:"primarykey;size:64"`
	DisplayName string `gorm:"size:64;not null"`
	AvatarURL   string `gorm:"size:512"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (UserRecord) TableName() string {
	return "users"
}

func (r UserRecord) toDomain() domain.User {
	return domain.User{ID: domain.UserID(r.ID), DisplayName: r.DisplayName, AvatarURL: r.AvatarURL}
}

// MessageRecord is an immutable chat message row. IDs are ULIDs, so they
// sort by creation time within one process.
type MessageRecord struct {
	ID        string     `gorm:"primarykey;size:26"`
	RoomID    string     `gorm:"size:128;not null;index:idx_messages_room_created,priority:1"`
	UserID    string     `gorm:"size:64;not null;index"`
	Content   string     `gorm:"type:text;not null"`
	CreatedAt time.Time  `gorm:"index:idx_messages_room_created,priority:2"`
	User      UserRecord `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
}

func (MessageRecord) TableName() string {
	return "messages"
}

func (r MessageRecord) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        r.ID,
		RoomID:    domain.RoomID(r.RoomID),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		User:      r.User.toDomain(),
	}
}
