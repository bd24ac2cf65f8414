package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/drg101/beaverlog/pkg/types"
)

// EventInput is one element of a POST /v1/events body.
type EventInput struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Timestamp *int64          `json:"timestamp"`
	UID       string          `json:"uid"`
	SessionID string          `json:"session_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// LogInput is one element of a POST /v1/logs body.
type LogInput struct {
	ID        string          `json:"id,omitempty"`
	Stream    string          `json:"stream,omitempty"`
	Message   string          `json:"message"`
	Timestamp *int64          `json:"timestamp"`
	UID       string          `json:"uid"`
	SessionID string          `json:"session_id"`
	Level     string          `json:"level,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IngestResponse represents the ingest response.
type IngestResponse struct {
	Success   bool     `json:"success"`
	Count     int      `json:"count"`
	IDs       []string `json:"ids"`
	RequestID string   `json:"request_id,omitempty"`
}

// handleIngestEvents handles POST /v1/events.
func (h *Handler) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var inputs []EventInput
	if !h.decodeBody(w, r, &inputs) {
		return
	}

	records := make([]types.Record, 0, len(inputs))
	for i, in := range inputs {
		if in.Name == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: name is required", i), requestID)
			return
		}
		if in.Timestamp == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: timestamp is required", i), requestID)
			return
		}
		if err := validObject(in.Meta); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: meta %v", i, err), requestID)
			return
		}
		records = append(records, types.Record{
			ID:        in.ID,
			Name:      in.Name,
			Timestamp: *in.Timestamp,
			UID:       in.UID,
			SessionID: in.SessionID,
			Payload:   in.Meta,
		})
	}

	h.ingest(w, r, types.KindEvents, records, "failed to insert events")
}

// handleIngestLogs handles POST /v1/logs. Logs without a stream go to the
// default stream.
func (h *Handler) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var inputs []LogInput
	if !h.decodeBody(w, r, &inputs) {
		return
	}

	records := make([]types.Record, 0, len(inputs))
	for i, in := range inputs {
		if in.Timestamp == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("log %d: timestamp is required", i), requestID)
			return
		}
		if err := validObject(in.Data); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("log %d: data %v", i, err), requestID)
			return
		}
		stream := in.Stream
		if stream == "" {
			stream = types.DefaultLogStream
		}
		records = append(records, types.Record{
			ID:        in.ID,
			Name:      stream,
			Timestamp: *in.Timestamp,
			UID:       in.UID,
			SessionID: in.SessionID,
			Message:   in.Message,
			Level:     in.Level,
			Payload:   in.Data,
		})
	}

	h.ingest(w, r, types.KindLogs, records, "failed to insert logs")
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, kind types.Kind, records []types.Record, failure string) {
	requestID := GetRequestID(r.Context())

	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "request body must contain at least one record", requestID)
		return
	}

	ids := make([]string, len(records))
	for i := range records {
		if records[i].ID == "" {
			id, err := h.ids.NewID(records[i].Timestamp)
			if err != nil {
				h.writeIndexError(w, r, err, failure)
				return
			}
			records[i].ID = id
		}
		ids[i] = records[i].ID
	}

	if err := h.index.PutBatch(r.Context(), kind, records); err != nil {
		h.writeIndexError(w, r, err, failure)
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		Success:   true,
		Count:     len(records),
		IDs:       ids,
		RequestID: requestID,
	})
}

// decodeBody decodes a JSON body, writing a 400 on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	requestID := GetRequestID(r.Context())

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", requestID)
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return false
	}
	return true
}

// validObject accepts an absent value, null or a JSON object.
func validObject(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.New("must be an object")
	}
	return nil
}
