package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/drg101/beaverlog/internal/observability"
	"github.com/drg101/beaverlog/pkg/types"
)

// Event is the wire form of an event record.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"`
	UID       string          `json:"uid,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// Log is the wire form of a log record.
type Log struct {
	ID        string          `json:"id"`
	Stream    string          `json:"stream"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
	UID       string          `json:"uid,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Level     string          `json:"level,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventsResponse is the response of GET /v1/events.
type EventsResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

// LogsResponse is the response of GET /v1/logs.
type LogsResponse struct {
	Logs  []Log `json:"logs"`
	Count int   `json:"count"`
}

// NamesResponse is the response of GET /v1/event-names and /v1/log-streams.
type NamesResponse struct {
	Names []string `json:"names"`
}

// StatsResponse is the response of GET /v1/stats.
type StatsResponse struct {
	Names []observability.NameStats `json:"names"`
}

// handleQueryEvents handles GET /v1/events?name=&from=&to=.
func (h *Handler) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "'name' query parameter is required", GetRequestID(r.Context()))
		return
	}

	records, ok := h.query(w, r, types.KindEvents, name, "failed to retrieve events")
	if !ok {
		return
	}

	events := make([]Event, len(records))
	for i, rec := range records {
		events[i] = Event{
			ID:        rec.ID,
			Name:      rec.Name,
			Timestamp: rec.Timestamp,
			UID:       rec.UID,
			SessionID: rec.SessionID,
			Meta:      rec.Payload,
		}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}

// handleQueryLogs handles GET /v1/logs?stream=&from=&to=.
func (h *Handler) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = types.DefaultLogStream
	}

	records, ok := h.query(w, r, types.KindLogs, stream, "failed to retrieve logs")
	if !ok {
		return
	}

	logs := make([]Log, len(records))
	for i, rec := range records {
		logs[i] = Log{
			ID:        rec.ID,
			Stream:    rec.Name,
			Message:   rec.Message,
			Timestamp: rec.Timestamp,
			UID:       rec.UID,
			SessionID: rec.SessionID,
			Level:     rec.Level,
			Data:      rec.Payload,
		}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: logs, Count: len(logs)})
}

// query parses from/to, runs the query under the configured timeout and
// returns the records newest first.
func (h *Handler) query(w http.ResponseWriter, r *http.Request, kind types.Kind, name, failure string) ([]types.Record, bool) {
	requestID := GetRequestID(r.Context())

	fromParam := r.URL.Query().Get("from")
	toParam := r.URL.Query().Get("to")
	if fromParam == "" || toParam == "" {
		writeError(w, http.StatusBadRequest, "Both 'from' and 'to' query parameters are required", requestID)
		return nil, false
	}

	from, errFrom := strconv.ParseInt(fromParam, 10, 64)
	to, errTo := strconv.ParseInt(toParam, 10, 64)
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, "Invalid timestamp format", requestID)
		return nil, false
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	records, err := h.index.Query(ctx, kind, name, from, to)
	if err != nil {
		h.writeIndexError(w, r, err, failure)
		return nil, false
	}

	types.SortByTimestampDesc(records)
	return records, true
}

// handleEventNames handles GET /v1/event-names.
func (h *Handler) handleEventNames(w http.ResponseWriter, r *http.Request) {
	h.names(w, r, types.KindEvents, "failed to retrieve event names")
}

// handleLogStreams handles GET /v1/log-streams.
func (h *Handler) handleLogStreams(w http.ResponseWriter, r *http.Request) {
	h.names(w, r, types.KindLogs, "failed to retrieve log streams")
}

func (h *Handler) names(w http.ResponseWriter, r *http.Request, kind types.Kind, failure string) {
	names, err := h.index.Names(r.Context(), kind)
	if err != nil {
		h.writeIndexError(w, r, err, failure)
		return
	}
	writeJSON(w, http.StatusOK, NamesResponse{Names: names})
}

// handleStats handles GET /v1/stats?top=N.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "'top' must be a non-negative integer", GetRequestID(r.Context()))
			return
		}
		top = n
	}

	stats := h.stats.GetTopNames(top)
	if stats == nil {
		stats = []observability.NameStats{}
	}
	writeJSON(w, http.StatusOK, StatsResponse{Names: stats})
}
