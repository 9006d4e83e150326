// Package orch drives the per-connection chat protocol: it turns inbound
// frames into registry, room and store operations and outbound frames.
package orch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// Reasons carried by error frames.
const (
	ReasonInvalidFormat      = "invalid message format"
	ReasonUnknownType        = "unknown message type"
	ReasonRoomRequired       = "roomId is required"
	ReasonRoomTooLong        = "roomId too long"
	ReasonInvalidToken       = "Invalid token"
	ReasonAuthUnavailable    = "authentication unavailable"
	ReasonProfileUnavailable = "user profile unavailable"
	ReasonUnknownUser        = "unknown user"
	ReasonNotJoined          = "must join a room first"
	ReasonEmptyContent       = "message content is required"
	ReasonTooLong            = "message too long"
	ReasonRateLimited        = "rate limit exceeded"
	ReasonPersistFailed      = "failed to send message"
)

// Orchestrator is the dispatcher shared by all connections of one relay.
// Frames of a single connection must be handed to HandleFrame sequentially,
// and Disconnect must not overlap with them; the transport guarantees this
// by running both from the connection's read loop.
type Orchestrator struct {
	Registry    *app.Registry
	Rooms       *app.RoomIndex
	Broadcaster *app.Broadcaster
	Policy      app.Policy
	Limiter     *app.RateLimiter

	Verifier core.TokenVerifier
	Store    core.MessageStore

	// MaxMessageLen is counted in runes; zero means unlimited.
	MaxMessageLen int
	// CallTimeout bounds each verifier/store call; zero means none.
	CallTimeout time.Duration

	// mu guards compound Registry + RoomIndex updates.
	mu sync.Mutex
}

// New wires a fresh registry, room index and broadcaster around the collaborators.
func New(verifier core.TokenVerifier, store core.MessageStore) *Orchestrator {
	reg := app.NewRegistry()
	rooms := app.NewRoomIndex()
	return &Orchestrator{
		Registry:    reg,
		Rooms:       rooms,
		Broadcaster: app.NewBroadcaster(reg, rooms),
		Policy:      app.DropPolicy{},
		Verifier:    verifier,
		Store:       store,
	}
}

// Connect records a freshly accepted transport in the unauthenticated state.
func (o *Orchestrator) Connect(conn core.SignalConnection) core.ConnID {
	id := o.Registry.Register(conn)
	metrics.ConnectionsActive.Inc()
	log.Info().Str("module", "orch").Str("conn", string(id)).Msg("connected")
	return id
}

// Disconnect runs the teardown path. It is safe to call more than once and
// after an explicit leave; only the first call that finds a joined session
// announces user_left.
func (o *Orchestrator) Disconnect(id core.ConnID) {
	o.leave(id)
	if o.Registry.Unregister(id) {
		metrics.ConnectionsActive.Dec()
		log.Info().Str("module", "orch").Str("conn", string(id)).Msg("disconnected")
	}
}

// HandleFrame processes one inbound frame to completion, broadcasts included.
// Every failure is reported to the sender only; none of them are fatal.
func (o *Orchestrator) HandleFrame(ctx context.Context, id core.ConnID, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("bad frame")
		metrics.FramesReceived.WithLabelValues("malformed").Inc()
		o.replyError(id, ReasonInvalidFormat)
		return
	}

	switch in.Type {
	case protocol.TypeJoin:
		metrics.FramesReceived.WithLabelValues(in.Type).Inc()
		o.handleJoin(ctx, id, in)
	case protocol.TypeMessage:
		metrics.FramesReceived.WithLabelValues(in.Type).Inc()
		o.handleMessage(ctx, id, in)
	case protocol.TypeLeave:
		metrics.FramesReceived.WithLabelValues(in.Type).Inc()
		o.handleLeave(id)
	case protocol.TypePing:
		metrics.FramesReceived.WithLabelValues(in.Type).Inc()
		o.reply(id, protocol.Pong())
	default:
		metrics.FramesReceived.WithLabelValues("unknown").Inc()
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("type", in.Type).Msg("unknown frame type")
		o.replyError(id, ReasonUnknownType)
	}
}

// ListRooms is the live membership summary.
func (o *Orchestrator) ListRooms() []app.RoomInfo {
	return o.Rooms.List()
}

func (o *Orchestrator) reply(id core.ConnID, out protocol.Outbound) {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	frame, err := protocol.Encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("reply encode")
		return
	}
	if err := snap.Conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Str("type", out.Type).Msg("reply dropped")
	}
}

func (o *Orchestrator) replyError(id core.ConnID, reason string) {
	metrics.ProtocolErrors.WithLabelValues(reason).Inc()
	o.reply(id, protocol.Error(reason))
}

func (o *Orchestrator) broadcast(room domain.RoomID, out protocol.Outbound, exclude core.ConnID) {
	res := o.Broadcaster.Send(room, out, exclude)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if snap, ok := o.Registry.Get(slow); ok {
				log.Warn().Str("module", "orch").Str("conn", string(slow)).Str("room", string(room)).Msg("kicking slow consumer")
				snap.Conn.Close()
			}
		case app.DropFrame:
		}
	}
}

// call runs one collaborator request with the configured timeout, timing it
// and converting a panic into an error.
func (o *Orchestrator) call(ctx context.Context, name string, f func(ctx context.Context) error) error {
	if o.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.CallTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		metrics.CollaboratorLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = f(ctx) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("%s panicked: %w", name, r.AsError())
	}
	return err
}

func (o *Orchestrator) refreshRoomGauge() {
	metrics.RoomsActive.Set(float64(o.Rooms.Count()))
}
