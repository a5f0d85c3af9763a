// Package server exposes the synthesis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/orpheuslabs/orpheusd/internal/backend"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
	"github.com/orpheuslabs/orpheusd/internal/request"
	"github.com/orpheuslabs/orpheusd/internal/synth"
)

type Server struct {
	manager *synth.Manager
	backend backend.Generator
	logger  *slog.Logger
}

func New(manager *synth.Manager, gen backend.Generator, logger *slog.Logger) *Server {
	return &Server{
		manager: manager,
		backend: gen,
		logger:  logger.With(slog.String("component", "http")),
	}
}

// Routes assembles the HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors())

	r.Post("/tts", s.handleTTS)
	r.Post("/tts/stream", s.handleTTSStream)
	r.Get("/voices", s.handleVoices)
	r.Get("/emotions", s.handleEmotions)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealthz)

	return r
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.manager.NewSession().Synthesize(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(result.WAV)))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("tts_output_%d.wav", time.Now().Unix())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.WAV)
}

func (s *Server) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, _ := w.(http.Flusher)
	wrote := false
	emit := func(b []byte) error {
		if !wrote {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := s.manager.NewSession().Stream(r.Context(), raw, emit)
	if err != nil && !wrote {
		writeError(w, err)
		return
	}
	// Once audio bytes are on the wire the only honest signal left is
	// closing the stream; the client sees truncation on failure.
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, request.VoicesByLocale())
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, request.EmotionMarkers())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := protocol.HealthResponse{Status: "healthy", BackendStatus: "unknown"}
	status := http.StatusOK

	if pinger, ok := s.backend.(backend.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			resp = protocol.HealthResponse{Status: "unhealthy", BackendStatus: "error", Message: err.Error()}
			status = http.StatusInternalServerError
		} else {
			resp.BackendStatus = "connected"
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (protocol.SynthesisRequest, bool) {
	var raw protocol.SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Error: "invalid request body",
			Kind:  protocol.KindMissingText,
		})
		return protocol.SynthesisRequest{}, false
	}
	return raw, true
}

func writeError(w http.ResponseWriter, err error) {
	kind, ok := protocol.KindOf(err)
	if !ok {
		kind = protocol.KindBackendProtocolError
	}
	writeJSON(w, statusFor(kind), protocol.ErrorResponse{Error: err.Error(), Kind: kind})
}

func statusFor(kind protocol.ErrorKind) int {
	switch kind {
	case protocol.KindMissingText, protocol.KindUnknownVoice, protocol.KindParameterOutOfRange:
		return http.StatusBadRequest
	case protocol.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case protocol.KindBackendProtocolError:
		return http.StatusBadGateway
	case protocol.KindSessionCancelled:
		// The client is gone; the status is never seen.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
