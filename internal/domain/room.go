package domain

// RoomID is assigned outside the relay (e.g. an event's chat room id).
type RoomID string

const MaxRoomIDLen = 128
