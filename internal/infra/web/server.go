package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/config"
	"audio-transcription-platform/internal/usecase"
)

type Server struct {
	uc        usecase.TranscriptionUseCase
	retention config.RetentionConfig
	apiKey    string
	maxBytes  int64
	log       *zerolog.Logger
}

func NewServer(
	uc usecase.TranscriptionUseCase,
	retention config.RetentionConfig,
	apiKey string,
	maxBytes int64,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		uc:        uc,
		retention: retention,
		apiKey:    apiKey,
		maxBytes:  maxBytes,
		log:       &l,
	}
}

// Router builds the full route tree. The transcription API sits behind the
// bearer-token middleware; health and metrics stay open.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/transcriptions", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.submitHandler)
		r.Get("/{id}", s.statusHandler)
		r.Post("/{id}/cancel", s.cancelHandler)
		r.Get("/{id}/download", s.downloadHandler)
	})
	return r
}

// authMiddleware provides simple Bearer token authentication for the API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
