// Package api exposes bulb control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/color"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/ledger"
)

const maxBodySize = 4096

// Controller is the bulb registry the server drives.
type Controller interface {
	Names() []string
	Snapshot(name string) (map[string]any, error)
	Versions(name string) (map[string]int64, error)
	Dispatch(ctx context.Context, name, label, source string, args ...int) error
}

// History lists recorded exchanges of a device.
type History interface {
	Recent(device string, limit int) ([]*ledger.Entry, error)
	GetByTimeRange(device string, start, end time.Time, limit int) ([]*ledger.Entry, error)
}

// Server is the HTTP control API.
type Server struct {
	addr       string
	controller Controller
	history    History
	httpServer *http.Server
}

// NewServer creates a new API server. history may be nil.
func NewServer(host string, port int, controller Controller, history History) *Server {
	return &Server{
		addr:       fmt.Sprintf("%s:%d", host, port),
		controller: controller,
		history:    history,
	}
}

// Handler returns the routes served by the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bulbs", s.handleList)
	mux.HandleFunc("GET /bulbs/{name}", s.handleGet)
	mux.HandleFunc("GET /bulbs/{name}/history", s.handleHistory)
	mux.HandleFunc("POST /bulbs/{name}/{command}", s.handleCommand)
	return mux
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bulbs": s.controller.Names()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap, err := s.controller.Snapshot(name)
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := s.controller.Versions(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "metrics": snap, "versions": versions})
}

type historyEntry struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Outcome   string         `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "history is disabled"})
		return
	}
	if _, err := s.controller.Snapshot(name); err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	limit := 20
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	since, err := parseTime(query.Get("since"), time.Unix(0, 0))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "since: " + err.Error()})
		return
	}
	until, err := parseTime(query.Get("until"), time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "until: " + err.Error()})
		return
	}

	var entries []*ledger.Entry
	if query.Has("since") || query.Has("until") {
		entries, err = s.history.GetByTimeRange(name, since, until, limit)
	} else {
		entries, err = s.history.Recent(name, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			ID:        e.ID,
			Command:   e.Command,
			Outcome:   string(e.Outcome),
			Error:     e.Error,
			Source:    e.Source,
			Payload:   e.Payload,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "history": out})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	command := r.PathValue("command")

	var args []int
	if command == bulb.CommandExact {
		rgb, err := readRGB(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		args = []int{rgb.R, rgb.G, rgb.B}
	}

	log.Debug().
		Str("method", r.Method).
		Str("device", name).
		Str("command", command).
		Msg("Received API command")

	if err := s.controller.Dispatch(r.Context(), name, command, "api", args...); err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.controller.Snapshot(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"name":    name,
		"command": command,
		"metrics": snap,
	})
}

// parseTime reads an RFC 3339 timestamp, returning def for an empty value.
func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}

func readRGB(r *http.Request) (color.RGB, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return color.RGB{}, fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	var rgb color.RGB
	if err := json.Unmarshal(body, &rgb); err != nil {
		return color.RGB{}, fmt.Errorf("invalid color body: %w", err)
	}
	if !rgb.Valid() {
		return color.RGB{}, fmt.Errorf("color components must be within 0..255, got %s", rgb)
	}
	return rgb, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, bulb.ErrUnrecognizedCommand), errors.Is(err, bulb.ErrInvalidArguments):
		return http.StatusBadRequest
	case errors.Is(err, bulb.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bulb.ErrMalformedPayload):
		return http.StatusBadGateway
	case errors.Is(err, bulb.ErrTransmission), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("API request failed")
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write API response")
	}
}
