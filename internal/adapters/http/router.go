package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/dkeye/chatrelay/internal/adapters/signal"
	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// HistoryStore serves the recent-messages endpoint. A nil store disables it.
type HistoryStore interface {
	RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.ChatMessage, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestLogger tags every request with an id and logs it once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(requestIDHeader, reqID)

		c.Next()

		log.Info().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", reqID).
			Str("remote_addr", c.ClientIP()).
			Msg("request completed")
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, history HistoryStore, health Pinger) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(pingCtx); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("health check failed")
				c.JSON(nethttp.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(nethttp.StatusOK, gin.H{
			"status":      "ok",
			"connections": o.Registry.Count(),
			"rooms":       o.Rooms.Count(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(o, cfg)
	api.GET("/ws/chat", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Msg("ws chat endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"rooms": o.ListRooms()})
	})

	if history != nil {
		api.GET("/rooms/:id/messages", func(c *gin.Context) {
			room := domain.RoomID(c.Param("id"))
			if len(room) > domain.MaxRoomIDLen {
				c.JSON(nethttp.StatusBadRequest, gin.H{"error": orch.ReasonRoomTooLong})
				return
			}
			limit := 50
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					c.JSON(nethttp.StatusBadRequest, gin.H{"error": "invalid limit"})
					return
				}
				limit = n
			}
			msgs, err := history.RecentMessages(c.Request.Context(), room, limit)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Str("module", "adapters.http").Str("room", string(room)).Msg("load history")
				}
				c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "failed to load messages"})
				return
			}
			c.JSON(nethttp.StatusOK, gin.H{"messages": msgs})
		})
	}

	log.Info().Str("module", "adapters.http").Bool("history", history != nil).Msg("router setup")
	return r
}
