package domain

import "time"

// ChatMessage is the canonical stored form returned by a message store.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"roomId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	User      User      `json:"user"`
}
