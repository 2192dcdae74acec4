// Package api exposes the HTTP surface: webhook ingest, the encrypted flow
// endpoint, and a small read API for the agent dashboard.
package api

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskerhq/taskerchat/internal/store"
	"github.com/taskerhq/taskerchat/internal/webhook"
)

// Defaults for the HTTP server.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	maxWebhookBody         = 1 << 20
)

// Opts holds server configuration assembled from options.
type Opts struct {
	Addr          string
	VerifyToken   string
	AppSecret     string
	AllowInsecure bool
	FlowKey       *rsa.PrivateKey
}

// Option configures the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the token echoed during webhook subscription.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret sets the secret used to validate webhook signatures.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithAllowInsecure disables webhook signature validation. Development only.
func WithAllowInsecure(allow bool) Option {
	return func(o *Opts) { o.AllowInsecure = allow }
}

// WithFlowKey sets the RSA private key backing the flow endpoint. Without it
// the flow endpoint responds 404.
func WithFlowKey(key *rsa.PrivateKey) Option {
	return func(o *Opts) { o.FlowKey = key }
}

// Server serves the webhook, flow and read endpoints.
type Server struct {
	opts      Opts
	store     store.Store
	processor *webhook.Processor
	httpSrv   *http.Server
}

// NewServer builds the HTTP server. A missing app secret is fatal unless
// insecure mode was explicitly enabled.
func NewServer(st store.Store, processor *webhook.Processor, options ...Option) (*Server, error) {
	opts := Opts{Addr: DefaultAddr}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.AppSecret == "" && !opts.AllowInsecure {
		return nil, fmt.Errorf("webhook app secret is required; set WEBHOOK_ALLOW_INSECURE=true to run without signature checks")
	}
	if opts.AppSecret == "" {
		slog.Warn("Webhook signature validation DISABLED; do not run this in production")
	}

	s := &Server{opts: opts, store: st, processor: processor}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /flow", s.handleFlow)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s, nil
}

// Handler exposes the routing mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until SIGINT/SIGTERM, then drains with a bounded shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.opts.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
