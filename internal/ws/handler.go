// Package ws serves the live channel over which new messages are pushed.
package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/telemetry"
)

// Handler upgrades authenticated requests and registers the connection as
// the participant's live handle.
type Handler struct {
	registry *presence.Registry
	settings Settings
	events   *telemetry.EventEmitter
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *presence.Registry, settings Settings, events *telemetry.EventEmitter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		settings: settings.withDefaults(),
		events:   events,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle must run behind middleware.AuthMiddleware.
func (h *Handler) Handle(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	info := newConnInfo(c.Request, userID, span.SpanContext().TraceID().String())
	client := newClient(conn, info, h.settings, h.log)
	h.registry.Register(userID, client)

	observability.IncWSActive()
	observability.IncWSEvent("connect")
	h.log.Info("ws connected", zap.String("user_id", userID), zap.String("conn_id", info.ConnID))
	h.events.Emit(context.Background(), telemetry.EventWSConnect, info.RequestID, userID, info.payload(""))

	go client.writePump()
	go h.serve(client)
}

func (h *Handler) serve(client *Client) {
	info := client.info
	err := client.readPump()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		observability.IncWSEvent("error")
		h.events.Emit(context.Background(), telemetry.EventWSError, info.RequestID, info.UserID, info.payload(reason))
	}

	removed := h.registry.Unregister(client)
	client.Close()

	observability.DecWSActive()
	observability.IncWSEvent("disconnect")
	h.log.Info("ws disconnected",
		zap.String("user_id", info.UserID),
		zap.String("conn_id", info.ConnID),
		zap.Bool("was_current", removed),
	)
	h.events.Emit(context.Background(), telemetry.EventWSDisconnect, info.RequestID, info.UserID, info.payload(reason))
}
