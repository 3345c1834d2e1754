// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/crypto/ocsp"
)

// DefaultHandshakeTimeout is the default bound on connection establishment
// including the TLS handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// DialerConfig configures a policy-enforcing TLS dialer.
type DialerConfig struct {

	// Policy decides server trust for every connection. Required.
	Policy *Policy

	// HandshakeTimeout bounds connection establishment including the TLS
	// handshake. Defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// CheckOCSPStaple verifies a stapled OCSP response when the server
	// provides one. A revoked status fails the dial.
	CheckOCSPStaple bool

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dialer establishes TLS connections whose server trust is decided by a
// pinning policy rather than the system trust store alone.
type Dialer struct {
	policy           *Policy
	handshakeTimeout time.Duration
	checkStaple      bool
	logger           *slog.Logger
}

// NewDialer creates a dialer enforcing the given policy.
func NewDialer(config *DialerConfig) (*Dialer, error) {
	if config == nil || config.Policy == nil {
		return nil, fmt.Errorf("%w: policy is required", ErrInvalidConfig)
	}

	timeout := config.HandshakeTimeout
	if timeout == 0 {
		timeout = DefaultHandshakeTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dialer{
		policy:           config.Policy,
		handshakeTimeout: timeout,
		checkStaple:      config.CheckOCSPStaple,
		logger:           logger.With("component", "pinned_dialer"),
	}, nil
}

// DialContext connects to addr (host:port) and completes a TLS handshake.
// The handshake fails with ErrTrustRejected when the policy rejects the
// served chain for the host portion of addr.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (*tls.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	d.logger.Debug("dialing pinned endpoint",
		"addr", addr,
		"mode", d.policy.Mode())

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.handshakeTimeout},
		Config:    d.policy.TLSConfig(host),
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	tlsConn := conn.(*tls.Conn)

	if d.checkStaple {
		if err := verifyStaple(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, err
		}
	}

	return tlsConn, nil
}

// verifyStaple checks the stapled OCSP response, if any, against the leaf
// certificate. Stapling is optional, so an absent staple passes.
func verifyStaple(state tls.ConnectionState) error {
	staple := state.OCSPResponse
	if len(staple) == 0 {
		return nil
	}
	peers := state.PeerCertificates
	if len(peers) == 0 {
		return nil
	}

	var issuer *x509.Certificate
	if len(peers) > 1 {
		issuer = peers[1]
	}
	resp, err := ocsp.ParseResponseForCert(staple, peers[0], issuer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOCSPStaple, err)
	}
	if resp.Status == ocsp.Revoked {
		return fmt.Errorf("%w: certificate revoked at %s",
			ErrOCSPStaple, resp.RevokedAt.Format(time.RFC3339))
	}
	return nil
}
