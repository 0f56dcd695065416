// Package web provides the HTTP ingress for taskweave: webhook
// delivery into the automation engine plus rule and health endpoints.
package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/taskweave/taskweave/internal/automation"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/logging"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// RuleLister exposes the read side of the rule engine to the API.
type RuleLister interface {
	List() []*core.AutomationRule
	Get(id string) (*core.AutomationRule, error)
}

// Server accepts inbound webhooks and turns them into events for the
// automation engine.
type Server struct {
	router  chi.Router
	sink    core.EventSink
	rules   RuleLister
	secrets map[string]string // source -> shared HMAC secret
	logger  *logging.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithRuleLister exposes the rule listing endpoints.
func WithRuleLister(rules RuleLister) ServerOption {
	return func(s *Server) {
		s.rules = rules
	}
}

// WithSourceSecrets enables HMAC verification per webhook source.
// Sources without a secret accept unsigned deliveries.
func WithSourceSecrets(secrets map[string]string) ServerOption {
	return func(s *Server) {
		s.secrets = secrets
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the ingress server delivering events to sink.
func NewServer(sink core.EventSink, opts ...ServerOption) *Server {
	s := &Server{
		sink:    sink,
		secrets: make(map[string]string),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Taskweave-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Post("/hooks/{source}", s.handleWebhook)

	if s.rules != nil {
		r.Route("/api/v1/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Get("/{ruleID}", s.handleGetRule)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook verifies an optional HMAC signature, decodes the JSON
// payload, and publishes a webhook.received event. Delivery to rules
// is synchronous; the response reports acceptance, not rule outcomes.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	if secret, ok := s.secrets[source]; ok && secret != "" {
		sig := r.Header.Get("X-Taskweave-Signature")
		if sig == "" || !automation.VerifySignature(secret, body, sig) {
			s.logger.Warn("webhook signature rejected", "source", source)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	payload := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "payload must be a JSON object")
			return
		}
	}

	event := events.WebhookReceived(source, payload)
	s.sink.HandleEvent(r.Context(), event)

	s.logger.Info("webhook accepted", "source", source, "event_id", event.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": event.ID})
}

func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rules.List())
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
