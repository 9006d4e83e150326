package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// SignalWSController bridges WebSocket connections to the orchestrator.
type SignalWSController struct {
	Orch *orch.Orchestrator

	readLimit   int64
	pingPeriod  time.Duration
	idleTimeout time.Duration
	writeWait   time.Duration
	sendBuffer  int
	upgrader    websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:        o,
		readLimit:   cfg.ReadLimit,
		pingPeriod:  cfg.PingPeriod,
		idleTimeout: cfg.IdleTimeout,
		writeWait:   cfg.WriteWait,
		sendBuffer:  cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WsSignalConn implements core.SignalConnection over a gorilla connection.
// Only the write pump writes to conn.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and serves the connection until it
// closes. ctx is the server lifetime; cancelling it drops every connection.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.sendBuffer)
	id := ctl.Orch.Connect(conn)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go ctl.writePump(ctx, id, conn)
	ctl.readPump(ctx, id, conn)
}
