package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
)

type errorEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type CodedError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ErrorJSON(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorEnvelope{Status: "error", Error: message})
}

func OK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func OKNoData(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func ErrorCode(w http.ResponseWriter, status int, code, msg string) {
	var e CodedError
	e.Error.Code = code
	e.Error.Message = msg
	WriteJSON(w, status, e)
}

// NDJSONType is the media type for newline-delimited JSON streams.
const NDJSONType = "application/x-ndjson"

// WantsNDJSON reports whether the client asked for a streamed response.
func WantsNDJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), NDJSONType) || r.URL.Query().Get("stream") == "1"
}

// NDJSON writes one JSON value per line and flushes after each so clients
// see progress as it happens. Safe for concurrent use.
type NDJSON struct {
	mu  sync.Mutex
	w   http.ResponseWriter
	enc *json.Encoder
	rc  *http.ResponseController
}

// NewNDJSON sends the status line and headers immediately.
func NewNDJSON(w http.ResponseWriter, status int) *NDJSON {
	w.Header().Set("Content-Type", NDJSONType)
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(status)
	s := &NDJSON{w: w, enc: json.NewEncoder(w), rc: http.NewResponseController(w)}
	_ = s.rc.Flush()
	return s
}

func (s *NDJSON) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
