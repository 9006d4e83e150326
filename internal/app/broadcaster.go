package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Skipped int
	Dropped []core.ConnID
}

// Broadcaster fans one frame out to the members of a room.
// Sends are serialized, so every member observes the same broadcast order.
type Broadcaster struct {
	Registry *Registry
	Rooms    *RoomIndex

	mu sync.Mutex
}

func NewBroadcaster(reg *Registry, rooms *RoomIndex) *Broadcaster {
	return &Broadcaster{Registry: reg, Rooms: rooms}
}

// Send delivers out to every open member of room except exclude (empty
// exclude means nobody). Membership is never modified here.
func (b *Broadcaster) Send(room domain.RoomID, out protocol.Outbound, exclude core.ConnID) PublishResult {
	res := PublishResult{}
	frame, err := protocol.Encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("room", string(room)).Msg("encode failed")
		return res
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.Rooms.MembersOf(room) {
		if id == exclude {
			continue
		}
		snap, ok := b.Registry.Get(id)
		if !ok || snap.Conn.IsClosed() {
			res.Skipped++
			continue
		}
		if err := deliver(snap.Conn, frame); err != nil {
			log.Debug().Err(err).Str("module", "app.broadcast").Str("conn", string(id)).Msg("delivery failed")
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SentTo++
	}
	metrics.BroadcastDeliveries.WithLabelValues("sent").Add(float64(res.SentTo))
	metrics.BroadcastDeliveries.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.BroadcastDeliveries.WithLabelValues("dropped").Add(float64(len(res.Dropped)))
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).Str("type", out.Type).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// deliver isolates one recipient: a panicking transport counts as a failed send.
func deliver(conn core.SignalConnection, frame core.Frame) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = conn.TrySend(frame) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("send panicked: %w", r.AsError())
	}
	return err
}
