// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/valyala/bytebufferpool"
)

const (
	// DefaultListenAddr is the default report server listen address.
	DefaultListenAddr = ":8446"

	// DefaultMaxBodyBytes caps the size of an accepted report body.
	DefaultMaxBodyBytes = 64 * 1024

	// DefaultRateLimit is the sustained reports-per-second budget
	// granted to each reporting source.
	DefaultRateLimit = 5.0

	// DefaultRateBurst is the burst budget granted to each source.
	DefaultRateBurst = 10

	// DefaultReadTimeout bounds reading the request head and body.
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout bounds keep-alive connections between requests.
	DefaultIdleTimeout = 60 * time.Second

	// ReportPath is the report submission endpoint path.
	ReportPath = "/v1/reports"

	sourceStaleAge  = 10 * time.Minute
	sourceSweepTick = time.Minute
	healthCheckPath = "/healthz"
)

// ServerConfig configures a report collection server.
type ServerConfig struct {

	// ListenAddr is the TCP listen address. Defaults to
	// DefaultListenAddr.
	ListenAddr string

	// MaxBodyBytes caps accepted report bodies. Defaults to
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// RateLimit is the per-source sustained reports-per-second budget.
	// Defaults to DefaultRateLimit.
	RateLimit float64

	// RateBurst is the per-source burst budget. Defaults to
	// DefaultRateBurst.
	RateBurst int

	// ReadTimeout, WriteTimeout, and IdleTimeout configure the
	// underlying HTTP server. Each defaults to its package constant.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Sink, when set, receives every accepted report.
	Sink func(*Report)

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server collects pin validation failure reports over HTTP. Incoming
// reports are rate limited per source, size capped, and validated
// against the report schema before reaching the sink.
type Server struct {
	addr       string
	maxBody    int64
	limiter    *sourceLimiter
	sink       func(*Report)
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a report collection server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	rateBurst := cfg.RateBurst
	if rateBurst <= 0 {
		rateBurst = DefaultRateBurst
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:    addr,
		maxBody: maxBody,
		limiter: newSourceLimiter(rateLimit, rateBurst, sourceStaleAge, sourceSweepTick),
		sink:    cfg.Sink,
		logger:  logger.With("component", "report_server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+ReportPath, s.handleReport)
	mux.HandleFunc("GET "+healthCheckPath, s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s, nil
}

// Handler returns the server's HTTP handler for embedding in an existing
// mux or serving behind middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background. Use Addr
// to learn the bound address when listening on port 0.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenFailed, err)
	}
	s.listener = ln
	s.logger.Info("report server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("report server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address after Start, or the configured
// address before it.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server and its rate limiter sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	source := requestSource(r)
	if !s.limiter.Allow(source) {
		s.logger.Debug("report rate limited", "source", source)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(r.Body, s.maxBody+1)); err != nil {
		s.logger.Debug("report body read failed", "source", source, "error", err)
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if int64(buf.Len()) > s.maxBody {
		s.logger.Debug("report body too large", "source", source, "limit", s.maxBody)
		http.Error(w, "report too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := validateReport(buf.Bytes()); err != nil {
		s.logger.Debug("report rejected by schema", "source", source, "error", err)
		http.Error(w, "invalid report", http.StatusBadRequest)
		return
	}

	var report Report
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		s.logger.Debug("report decode failed", "source", source, "error", err)
		http.Error(w, "invalid report", http.StatusBadRequest)
		return
	}

	s.logger.Info("pin failure report received",
		"report_id", report.ID,
		"hostname", report.Hostname,
		"mode", report.Mode,
		"reason", report.Reason,
		"source", source)

	if s.sink != nil {
		s.sink(&report)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n")) //nolint:errcheck
}

// requestSource extracts the client IP for rate limiting, falling back to
// the whole RemoteAddr when it has no port.
func requestSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
