package orch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/dkeye/chatrelay/internal/metrics"
	"github.com/dkeye/chatrelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleMessage(ctx context.Context, id core.ConnID, in protocol.Inbound) {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return
	}
	sess := snap.Session
	if !sess.Joined() {
		o.replyError(id, ReasonNotJoined)
		return
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		o.replyError(id, ReasonEmptyContent)
		return
	}
	if o.MaxMessageLen > 0 && utf8.RuneCountInString(content) > o.MaxMessageLen {
		o.replyError(id, ReasonTooLong)
		return
	}
	if !o.Limiter.Allow(sess.User.ID) {
		o.replyError(id, ReasonRateLimited)
		return
	}

	var msg *domain.ChatMessage
	err := o.call(ctx, "persist_message", func(ctx context.Context) error {
		var err error
		msg, err = o.Store.PersistMessage(ctx, sess.RoomID, sess.User.ID, content)
		return err
	})
	if err != nil || msg == nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(id)).Str("room", string(sess.RoomID)).Msg("persist failed")
		o.replyError(id, ReasonPersistFailed)
		return
	}
	metrics.MessagesPersisted.Inc()

	// The sender gets its own message back as the canonical copy.
	o.broadcast(sess.RoomID, protocol.Message(*msg), "")
}
