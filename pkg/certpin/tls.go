// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// VerifyRawChain evaluates a raw DER chain, as served during a TLS
// handshake, against the policy. Unparseable chain elements are skipped.
// Returns nil when the policy accepts the chain for host.
func (p *Policy) VerifyRawChain(rawCerts [][]byte, host string) error {
	if len(rawCerts) == 0 {
		return ErrNoCertificates
	}

	chain := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		chain = append(chain, cert)
	}

	if !p.Evaluate(chain, host) {
		return fmt.Errorf("%w: host %q", ErrTrustRejected, host)
	}
	return nil
}

// TLSConfig returns a TLS client configuration that delegates server trust
// to the policy. Built-in verification is disabled and every handshake runs
// the policy against the served chain, so chain validity, hostname binding,
// and pinning are decided in one place.
func (p *Policy) TLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: true, //nolint:gosec // Trust is decided by the pinning policy
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return p.VerifyRawChain(rawCerts, serverName)
		},
	}
}
