// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package httpapi exposes the credential service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/auth"
	"github.com/skynet-visitas/authd/internal/identity"
	"github.com/skynet-visitas/authd/internal/observability"
)

// Authenticator wraps the login operation of auth.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, secret string) (*identity.View, error)
}

// Sessions wraps the session token operations of auth.SessionIssuer.
type Sessions interface {
	Issue(view *identity.View) (string, error)
	Verify(token string) (*auth.SessionClaims, error)
	TTL() time.Duration
}

// ResetFlow wraps the password-reset operations of auth.ResetService.
type ResetFlow interface {
	RequestReset(ctx context.Context, email string) *auth.ResetRequestResult
	RedeemReset(ctx context.Context, token, newSecret string) error
}

// PasswordChanger wraps the password-change operations of auth.PasswordService.
type PasswordChanger interface {
	ChangeOwnPassword(ctx context.Context, caller auth.Caller, currentSecret, newSecret string) (*auth.ChangeReceipt, error)
	ChangeUserPassword(ctx context.Context, caller auth.Caller, targetID, newSecret string) (*auth.ChangeReceipt, error)
}

// Verify interfaces are satisfied.
var (
	_ Authenticator   = (*auth.Service)(nil)
	_ Sessions        = (*auth.SessionIssuer)(nil)
	_ ResetFlow       = (*auth.ResetService)(nil)
	_ PasswordChanger = (*auth.PasswordService)(nil)
)

// Deps bundles the collaborators the HTTP server needs. Metrics and Logger
// may be nil.
type Deps struct {
	Authenticator Authenticator
	Sessions      Sessions
	Resets        ResetFlow
	Passwords     PasswordChanger
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

// Server serves the credential API.
type Server struct {
	addr       string
	deps       Deps
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an API server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Authenticator == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Errorf("authenticator is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Errorf("sessions are required")
	}
	if deps.Resets == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Errorf("reset flow is required")
	}
	if deps.Passwords == nil {
		return nil, oops.Code("API_INVALID_DEPENDENCY").Errorf("password changer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{addr: addr, deps: deps}, nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)

	mux.Handle("GET /auth/profile", s.requireSession(http.HandlerFunc(s.handleProfile)))
	mux.Handle("POST /auth/change-password", s.requireSession(http.HandlerFunc(s.handleChangePassword)))

	return mux
}

// Start begins serving the API. Same contract as the observability server:
// the returned channel reports serve failures and closes on clean shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.deps.Logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.deps.Logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.deps.Logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
