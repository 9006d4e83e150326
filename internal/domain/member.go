package domain

// Member is the session of one connection: who it is and where it sits.
// A zero Member means the connection has not joined a room.
// No transport or lifecycle logic here.
type Member struct {
	User   *User
	RoomID RoomID
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, room RoomID) Member {
	return Member{User: user, RoomID: room}
}

// Joined reports whether the session is bound to a room.
func (m Member) Joined() bool {
	return m.User != nil && m.RoomID != ""
}
