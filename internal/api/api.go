// Package api provides the HTTP server of the assistant.
//
// It exposes a health check, the survey completion callback used by the survey
// web form, and the inbound Twilio webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/twilio/twilio-go/client"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// MaxRequestBodyBytes caps JSON and form bodies.
	MaxRequestBodyBytes = 64 << 10
)

// SurveyStore marks surveys of known users as completed.
type SurveyStore interface {
	// GetUser returns models.ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, id string) (*models.User, error)
	CompleteSurvey(ctx context.Context, userID string, at time.Time) error
}

// WebhookDeliverer turns an inbound Twilio message into a bot event.
type WebhookDeliverer interface {
	Deliver(from, body, messageSID string, at time.Time) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string           // listen address
	TwilioAuthToken string           // enables X-Twilio-Signature verification when set
	WebhookURL      string           // public URL Twilio signs; defaults to the request URL
	Webhook         WebhookDeliverer // nil disables /twilio/webhook
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTwilioAuthToken enables webhook signature verification.
func WithTwilioAuthToken(token string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = token
	}
}

// WithWebhookURL sets the public webhook URL used for signature verification.
func WithWebhookURL(url string) Option {
	return func(o *Opts) {
		o.WebhookURL = url
	}
}

// WithWebhook mounts the Twilio webhook on the given deliverer.
func WithWebhook(d WebhookDeliverer) Option {
	return func(o *Opts) {
		o.Webhook = d
	}
}

// Server is the HTTP surface of the assistant.
type Server struct {
	addr       string
	surveys    SurveyStore
	webhook    WebhookDeliverer
	validator  *client.RequestValidator
	webhookURL string
	now        func() time.Time
}

// NewServer creates a Server. surveys must not be nil.
func NewServer(surveys SurveyStore, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		addr:       cfg.Addr,
		surveys:    surveys,
		webhook:    cfg.Webhook,
		webhookURL: cfg.WebhookURL,
		now:        time.Now,
	}
	if cfg.TwilioAuthToken != "" {
		v := client.NewRequestValidator(cfg.TwilioAuthToken)
		s.validator = &v
	}
	slog.Debug("Server.NewServer: configured", "addr", s.addr, "webhook", s.webhook != nil, "signature_check", s.validator != nil)
	return s
}

// Handler returns the routes served by the Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/survey/complete", s.surveyCompleteHandler)
	if s.webhook != nil {
		mux.HandleFunc("/twilio/webhook", s.twilioWebhookHandler)
	}
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	slog.Info("Server.Run: stopped")
	return nil
}
