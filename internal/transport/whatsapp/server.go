// Package whatsapp exposes the bot over a Twilio WhatsApp webhook. Twilio
// POSTs each inbound message as a form and expects a TwiML document with the
// reply. Deliveries are retried by Twilio, so the server deduplicates by
// message SID before handing anything to the bot.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const dedupeTTL = 1 * time.Hour

// MessageHandler produces the reply for one inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, user, text string) string
}

// Config holds the webhook server configuration.
type Config struct {
	Logger  *slog.Logger
	Handler MessageHandler
	Addr    string
	// AuthToken enables Twilio signature validation when set. Leave empty
	// only for local runs behind a tunnel you trust.
	AuthToken string
	// PublicURL is the externally visible base URL Twilio signs against,
	// e.g. "https://bot.example.com". Defaults to reconstructing it from
	// the request.
	PublicURL string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Handler == nil {
		return fmt.Errorf("message handler is required")
	}
	if cfg.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	return nil
}

// Server is the webhook HTTP server.
type Server struct {
	cfg    Config
	log    *slog.Logger
	seen   *ttlcache.Cache[string, struct{}]
	server *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate server config: %w", err)
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Logger,
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](dedupeTTL),
		),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/whatsapp", s.handleWebhook)
	mux.HandleFunc("POST /test/query", s.handleTestQuery)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.seen.Start()
	defer s.seen.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("whatsapp: webhook server listening", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		WebhookRequestsTotal.WithLabelValues("bad_form").Inc()
		return
	}

	if s.cfg.AuthToken != "" {
		signature := r.Header.Get("X-Twilio-Signature")
		if !validSignature(s.cfg.AuthToken, s.requestURL(r), r.PostForm, signature) {
			s.log.Warn("whatsapp: rejected request with invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			WebhookRequestsTotal.WithLabelValues("bad_signature").Inc()
			return
		}
	}

	sid := r.PostFormValue("MessageSid")
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	// Twilio retries deliveries it considers unacknowledged. A SID seen
	// within the TTL gets an empty TwiML so the retry is absorbed without
	// running the pipeline again.
	if sid != "" && s.seen.Has(sid) {
		s.log.Info("whatsapp: duplicate delivery skipped", "sid", sid, "from", from)
		WebhookRequestsTotal.WithLabelValues("duplicate").Inc()
		s.writeTwiML(w)
		return
	}
	if sid != "" {
		s.seen.Set(sid, struct{}{}, ttlcache.DefaultTTL)
	}

	reply := s.cfg.Handler.Handle(r.Context(), from, body)
	WebhookRequestsTotal.WithLabelValues("ok").Inc()
	s.writeTwiML(w, reply)
}

// handleTestQuery runs a question through the bot without Twilio in the
// loop. JSON in, JSON out.
func (s *Server) handleTestQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}

	reply := s.cfg.Handler.Handle(r.Context(), "test", req.Question)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"answer": reply})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeTwiML(w http.ResponseWriter, messages ...string) {
	body, err := renderTwiML(messages...)
	if err != nil {
		s.log.Error("whatsapp: failed to render TwiML", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)
}

func (s *Server) requestURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
