package app

import (
	"sort"
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
)

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomIndex maps a room to the connections currently joined to it.
// A room exists here only while it has at least one member.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.ConnID]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[domain.RoomID]map[core.ConnID]struct{})}
}

func (x *RoomIndex) Join(room domain.RoomID, id core.ConnID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.rooms[room]
	if !ok {
		set = make(map[core.ConnID]struct{})
		x.rooms[room] = set
	}
	set[id] = struct{}{}
}

func (x *RoomIndex) Leave(room domain.RoomID, id core.ConnID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.rooms[room]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(x.rooms, room)
	}
}

// MembersOf returns a copy, so callers may iterate while others mutate.
func (x *RoomIndex) MembersOf(room domain.RoomID) []core.ConnID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.rooms[room]
	out := make([]core.ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (x *RoomIndex) Has(room domain.RoomID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[room]
	return ok
}

// List is sorted by room id.
func (x *RoomIndex) List() []RoomInfo {
	x.mu.RLock()
	out := make([]RoomInfo, 0, len(x.rooms))
	for id, set := range x.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(set)})
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (x *RoomIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rooms)
}
