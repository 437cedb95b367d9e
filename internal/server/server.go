// Package server is the HTTP/websocket boundary between the capture core
// and the browser dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/archive"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/capture"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/media"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/summary"
)

// Config for the HTTP server.
type Config struct {
	Addr string
}

// Summarizer generates structured summaries from transcript text.
type Summarizer interface {
	GenerateSummary(ctx context.Context, transcript, meetingTitle string) (*summary.Result, error)
}

// Server wires the capture service, media bridge, archive and summarizer
// behind the HTTP API consumed by the dashboard.
type Server struct {
	cfg        Config
	svc        *capture.Service
	bridge     *Bridge
	store      *archive.Store
	summarizer Summarizer

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New builds the server. store and summarizer may be nil; the endpoints
// that need them answer 503 instead.
func New(cfg Config, svc *capture.Service, bridge *Bridge, store *archive.Store, summarizer Summarizer) *Server {
	s := &Server{
		cfg:        cfg,
		svc:        svc,
		bridge:     bridge,
		store:      store,
		summarizer: summarizer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/platforms", s.handlePlatforms).Methods("GET")
	router.HandleFunc("/api/sessions", s.handleStartSession).Methods("POST")
	router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods("GET")
	router.HandleFunc("/api/sessions/{id}", s.handleStopSession).Methods("DELETE")
	router.HandleFunc("/api/sessions/{id}/summary", s.handleSummarize).Methods("POST")
	router.HandleFunc("/ws/media/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.bridge.ServeMedia(w, r, mux.Vars(r)["key"])
	})
	router.HandleFunc("/ws/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleEvents(w, r, mux.Vars(r)["id"])
	})
	router.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
	return s
}

// Start serves until Stop.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// startRequest starts a capture. clientId is the pairing key the dashboard
// generated for this attempt: the request blocks until the browser connects
// /ws/media/{clientId} and grants its devices, so the session id cannot
// serve as the key.
type startRequest struct {
	Platform   string `json:"platform"`
	MeetingURL string `json:"meetingUrl"`
	ClientID   string `json:"clientId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MeetingURL == "" {
		http.Error(w, "meetingUrl is required", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "clientId is required", http.StatusBadRequest)
		return
	}

	id, err := s.svc.StartCapture(r.Context(), req.Platform, req.MeetingURL, req.ClientID)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.svc.GetAllActiveSessions()
	out := make([]capture.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.GetActiveSession(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	err := s.svc.StopCapture(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, capture.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.PlatformIntegrations())
}

type summarizeRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.summarizer == nil {
		http.Error(w, "summarization not configured", http.StatusServiceUnavailable)
		return
	}

	var req summarizeRequest
	if r.Body != nil {
		// Title is optional; ignore a missing or empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id := mux.Vars(r)["id"]
	transcript, err := s.store.Transcript(r.Context(), id)
	if errors.Is(err, archive.ErrNotArchived) {
		http.Error(w, "no archived transcript for session", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()
	result, err := s.summarizer.GenerateSummary(ctx, transcript, req.Title)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		http.Error(w, "capture permission denied: grant screen and microphone access", http.StatusForbidden)
	case errors.Is(err, media.ErrNoDevice):
		http.Error(w, "no capture-capable device available", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		http.Error(w, "capture start canceled", 499)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
