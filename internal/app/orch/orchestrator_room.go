package orch

import (
	"context"
	"errors"
	"strings"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleJoin(ctx context.Context, id core.ConnID, in protocol.Inbound) {
	room := domain.RoomID(strings.TrimSpace(in.RoomID))
	if room == "" {
		o.replyError(id, ReasonRoomRequired)
		return
	}
	if len(room) > domain.MaxRoomIDLen {
		o.replyError(id, ReasonRoomTooLong)
		return
	}
	if in.Credential == "" {
		o.replyError(id, ReasonInvalidToken)
		return
	}

	user, reason := o.authenticate(ctx, in.Credential)
	if user == nil {
		o.replyError(id, reason)
		return
	}

	o.mu.Lock()
	snap, ok := o.Registry.Get(id)
	if !ok {
		o.mu.Unlock()
		return
	}
	prev := snap.Session
	moved := prev.Joined() && prev.RoomID != room
	if moved {
		o.Rooms.Leave(prev.RoomID, id)
	}
	o.Registry.UpdateSession(id, domain.NewMember(user, room))
	// The ack is queued before the membership is visible to broadcasts, so
	// no room traffic can overtake it.
	o.reply(id, protocol.Joined(room, user.ID))
	o.Rooms.Join(room, id)
	o.mu.Unlock()
	o.refreshRoomGauge()

	if moved {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("from_room", string(prev.RoomID)).Msg("left previous room")
		o.broadcast(prev.RoomID, protocol.UserLeft(*prev.User), id)
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("user", string(user.ID)).Str("room", string(room)).Msg("joined room")
	o.broadcast(room, protocol.UserJoined(*user), id)
}

// authenticate resolves a credential to a profile snapshot. On failure it
// returns nil and the reason for the error frame.
func (o *Orchestrator) authenticate(ctx context.Context, credential string) (*domain.User, string) {
	var uid domain.UserID
	err := o.call(ctx, "verify_credential", func(ctx context.Context) error {
		var err error
		uid, err = o.Verifier.VerifyCredential(ctx, credential)
		return err
	})
	switch {
	case errors.Is(err, core.ErrInvalidCredential):
		return nil, ReasonInvalidToken
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Msg("token verifier failed")
		return nil, ReasonAuthUnavailable
	case uid == "":
		return nil, ReasonInvalidToken
	}

	var user *domain.User
	err = o.call(ctx, "lookup_user", func(ctx context.Context) error {
		var err error
		user, err = o.Store.LookupUserProfile(ctx, uid)
		return err
	})
	switch {
	case errors.Is(err, core.ErrUserNotFound) || (err == nil && user == nil):
		// The store cannot attribute messages to a user it does not know.
		log.Warn().Str("module", "orch").Str("user", string(uid)).Msg("verified user has no profile")
		return nil, ReasonUnknownUser
	case err != nil:
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("profile lookup failed")
		return nil, ReasonProfileUnavailable
	}
	return user, ""
}

func (o *Orchestrator) handleLeave(id core.ConnID) {
	o.leave(id)
	o.reply(id, protocol.Left())
}

// leave removes id from its room and announces it. A connection that is not
// joined is left untouched, which makes repeated leaves silent.
func (o *Orchestrator) leave(id core.ConnID) {
	o.mu.Lock()
	snap, ok := o.Registry.Get(id)
	if !ok || !snap.Session.Joined() {
		o.mu.Unlock()
		return
	}
	sess := snap.Session
	o.Rooms.Leave(sess.RoomID, id)
	o.Registry.ClearSession(id)
	o.mu.Unlock()
	o.refreshRoomGauge()

	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(sess.RoomID)).Msg("left room")
	o.broadcast(sess.RoomID, protocol.UserLeft(*sess.User), id)
}
