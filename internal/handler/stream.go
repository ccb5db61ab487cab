package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

const streamWriteTimeout = 5 * time.Second

// StreamEvents handles GET /counters/{id}/events/ws
// Upgrades to a websocket and pushes every committed event of the counter as
// a JSON text message until either side goes away.
func (h *ClaimHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetCounter(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Subscribe before the handshake completes so no event committed after
	// the client sees the upgrade is missed.
	evs, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()

	// The server's WriteTimeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Info("ws.accept.fail", "counter", id, "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// The stream is server to client only; CloseRead handles control frames
	// and cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.log.Info("ws.write.fail", "counter", id, "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		}
	}
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev model.Event) error {
	ctx, cancel := context.WithTimeout(parent, streamWriteTimeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
