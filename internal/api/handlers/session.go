package handlers

import (
	"net/http"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/response"
	"github.com/Jeongbyungkyu/korea-investment/internal/service/stream"
)

// StreamStats exposes the supervisor's counters.
type StreamStats interface {
	Stats() stream.Stats
}

// BookStats exposes the live bar book counters.
type BookStats interface {
	Applied() int64
	Ignored() int64
}

// SessionHandler serves the realtime session state
type SessionHandler struct {
	stream StreamStats
	book   BookStats // optional
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(stream StreamStats, book BookStats) *SessionHandler {
	return &SessionHandler{stream: stream, book: book}
}

// SessionResponse is the session status payload
type SessionResponse struct {
	stream.Stats
	TicksApplied *int64 `json:"ticks_applied,omitempty"`
	TicksIgnored *int64 `json:"ticks_ignored,omitempty"`
}

// GetSession returns the session state and stream counters
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		response.Error(w, r, http.StatusServiceUnavailable, response.ErrCodeUnavailable, "realtime stream is not running")
		return
	}

	resp := SessionResponse{Stats: h.stream.Stats()}
	if h.book != nil {
		applied, ignored := h.book.Applied(), h.book.Ignored()
		resp.TicksApplied = &applied
		resp.TicksIgnored = &ignored
	}
	response.Success(w, r, resp)
}
