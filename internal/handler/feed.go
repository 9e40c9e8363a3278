package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/assist-service/internal/alert"
	"github.com/psds-microservice/assist-service/internal/changefeed"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/psds-microservice/assist-service/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type snapshotMessage[T any] struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
	Version    uint64 `json:"version"`
	Records    []T    `json:"records"`
}

type alertMessage struct {
	Type   string       `json:"type"`
	Ticket model.Ticket `json:"ticket"`
}

// FeedHandler streams collection snapshots over websockets.
type FeedHandler struct {
	tickets *changefeed.Hub[model.Ticket]
	drivers *changefeed.Hub[model.Driver]
	lookup  store.DriverStore
	log     *slog.Logger
}

func NewFeedHandler(tickets *changefeed.Hub[model.Ticket], drivers *changefeed.Hub[model.Driver], lookup store.DriverStore, log *slog.Logger) *FeedHandler {
	return &FeedHandler{tickets: tickets, drivers: drivers, lookup: lookup, log: orDefault(log).With("component", "feed")}
}

// Tickets streams ticket snapshots followed by alert messages for tickets
// that opened since the previous snapshot, when the viewer should hear about them.
func (h *FeedHandler) Tickets(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sub, err := h.tickets.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable"})
		return
	}
	defer sub.Close()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	detector := alert.NewDetector()
	stream(c.Request.Context(), conn, h.log, sub, func(snap changefeed.Snapshot[model.Ticket]) []any {
		out := []any{snapshotMessage[model.Ticket]{
			Type:       "snapshot",
			Collection: store.CollectionTickets,
			Version:    snap.Version,
			Records:    snap.Records,
		}}
		fresh := detector.Observe(snap.Records)
		if len(fresh) == 0 || !alert.ShouldAlert(h.viewer(c.Request.Context(), a)) {
			return out
		}
		for _, t := range fresh {
			out = append(out, alertMessage{Type: "alert", Ticket: t})
		}
		return out
	})
}

func (h *FeedHandler) Drivers(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	sub, err := h.drivers.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable"})
		return
	}
	defer sub.Close()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	stream(c.Request.Context(), conn, h.log, sub, func(snap changefeed.Snapshot[model.Driver]) []any {
		return []any{snapshotMessage[model.Driver]{
			Type:       "snapshot",
			Collection: store.CollectionDrivers,
			Version:    snap.Version,
			Records:    snap.Records,
		}}
	})
}

// viewer resolves the caller's current availability. It is read per alert
// because drivers toggle it while connected.
func (h *FeedHandler) viewer(ctx context.Context, a service.Actor) alert.Viewer {
	v := alert.Viewer{Role: a.Role}
	if a.Role == model.RoleDriver {
		if d, err := h.lookup.GetDriver(ctx, a.ID); err == nil {
			v.DriverStatus = d.Status
		}
	}
	return v
}

// stream writes every snapshot rendered by render until the client goes
// away, the request ends or the hub shuts down.
func stream[T any](ctx context.Context, conn *websocket.Conn, log *slog.Logger, sub *changefeed.Subscription[T], render func(changefeed.Snapshot[T]) []any) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// reader: the client sends nothing useful; a read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case snap, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			for _, msg := range render(snap) {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
