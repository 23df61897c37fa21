package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/observability"
)

const defaultHeartbeatInterval = 30 * time.Second

// SSEHandler streams prescription save events to history viewers.
type SSEHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration
	clients   atomic.Int64
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		heartbeat: defaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides how often idle streams are pinged.
func (h *SSEHandler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// StreamPrescriptionSaves handles GET /api/prescriptions/stream. Each saved
// prescription is sent as a "prescription_saved" event so open history
// views know to reload.
func (h *SSEHandler) StreamPrescriptionSaves(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if h.eventBus == nil {
		respondWithError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}

	eventChan, err := h.eventBus.Subscribe(r.Context(), providers.EventChannelPrescriptionSaved)
	if err != nil {
		logger.Error().Err(err).Str("channel", providers.EventChannelPrescriptionSaved).Msg("Failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}

	// Streams outlive the server's WriteTimeout; heartbeats keep them alive.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug().Err(err).Msg("Write deadline not cleared for history stream")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clients := h.clients.Add(1)
	defer h.clients.Add(-1)
	logger.Debug().Int64("clients", clients).Msg("History stream client connected")

	h.sendEvent(w, "connected", map[string]interface{}{
		"timestamp": time.Now().UTC(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("History stream client disconnected")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now().UTC(),
			})
			flusher.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			h.sendEvent(w, "prescription_saved", event)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of open streams.
func (h *SSEHandler) ClientCount() int {
	return int(h.clients.Load())
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}
