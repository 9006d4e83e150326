package app

import (
	"fmt"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose frame could not be delivered.
type Policy interface {
	OnBackPressure(room domain.RoomID, member core.ConnID) BackpressureAction
}

// DropPolicy loses the frame for that member and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return DropFrame
}

// KickPolicy closes slow consumers; their read loop performs the teardown.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return KickMember
}

// PolicyByName maps the slow_consumer config value to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
