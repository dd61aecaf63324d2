package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"invoicebot/internal/dispatcher"
	"invoicebot/internal/engine"
	"invoicebot/internal/logger"
	"invoicebot/internal/slack"
	"invoicebot/internal/store"
)

// Slack signing headers.
const (
	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"
)

// Deps wires the HTTP surface's collaborators.
type Deps struct {
	Verifier   *slack.Verifier
	Dispatcher *dispatcher.Dispatcher
	Engine     *engine.Engine
	Store      *store.Store
	BotUserID  string
}

// Server exposes the webhook endpoint and the demo analysis endpoints.
type Server struct {
	deps Deps
	log  zerolog.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	return &Server{
		deps: deps,
		log:  logger.WithComponent("server"),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/slack/events", s.handleSlackEvents)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/pay_invoice", s.handlePayInvoice)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSlackEvents authenticates the webhook, answers the verification
// handshake, drops the bot's own echoes, and hands everything else to the
// dispatcher before acknowledging. Slow work never runs on this handler.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !s.deps.Verifier.Verify(body, r.Header.Get(headerTimestamp), r.Header.Get(headerSignature)) {
		s.log.Warn().
			Str("state", string(dispatcher.StateRejected)).
			Str("remote", r.RemoteAddr).
			Msg("Webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slack.ParseEvent(body)
	if err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	switch ev := event.(type) {
	case slack.ChallengeEvent:
		writeJSON(w, http.StatusOK, map[string]string{"challenge": ev.Challenge})
		return
	case slack.MessageEvent:
		// The bot's own replies are echoed back as new events; dropping them
		// here breaks the feedback loop.
		if ev.BotID != "" || (s.deps.BotUserID != "" && ev.User == s.deps.BotUserID) {
			s.log.Debug().Str("user", ev.User).Msg("Dropping self-authored event")
			w.WriteHeader(http.StatusOK)
			return
		}
	case slack.FileSharedEvent:
		if s.deps.BotUserID != "" && ev.User == s.deps.BotUserID {
			s.log.Debug().Str("user", ev.User).Msg("Dropping self-authored event")
			w.WriteHeader(http.StatusOK)
			return
		}
	case slack.UnrecognizedEvent:
		s.log.Debug().Str("type", ev.Type).Msg("Ignoring unrecognized event")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.deps.Dispatcher.Dispatch(event); err != nil {
		if errors.Is(err, dispatcher.ErrQueueFull) {
			s.log.Warn().Msg("Dispatch queue full, pushing back")
			http.Error(w, "busy, retry later", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "failed to schedule event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	analysis := s.deps.Engine.Analyze(s.deps.Store.Snapshot())
	writeJSON(w, http.StatusOK, analysis)
}

type payRequest struct {
	InvoiceID flexID `json:"invoice_id"`
}

func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InvoiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invoice_id is required"})
		return
	}

	if err := s.deps.Store.Pay(string(req.InvoiceID)); err != nil {
		if errors.Is(err, store.ErrNotFoundOrAlreadyPaid) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Invoice not found or already paid."})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Invoice %s marked as paid.", req.InvoiceID),
	})
}

// flexID accepts a JSON string or number; clients send invoice ids both ways.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("invoice_id must be a string or number")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
