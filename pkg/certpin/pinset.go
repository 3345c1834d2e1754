// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/x509"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
)

// pinSet is an immutable snapshot of the pinned certificate set with the
// canonical encodings precomputed for O(1) membership tests. A policy swaps
// whole snapshots atomically, so concurrent evaluations always observe a
// consistent set, never a partial update.
type pinSet struct {
	certs   []*x509.Certificate
	certDER map[string]struct{}
	keyDER  map[string]struct{}
}

// newPinSet builds a snapshot from the given certificates. Nil entries are
// dropped. Certificates whose canonical bytes or key encoding cannot be
// derived simply contribute nothing to the corresponding membership set;
// they are retained in the certificate list so callers can observe what was
// pinned.
func newPinSet(certs []*x509.Certificate) *pinSet {
	ps := &pinSet{
		certDER: make(map[string]struct{}, len(certs)),
		keyDER:  make(map[string]struct{}, len(certs)),
	}
	for _, cert := range certs {
		if cert == nil {
			continue
		}
		ps.certs = append(ps.certs, cert)
		if der, err := certenc.CertificateBytes(cert); err == nil {
			ps.certDER[string(der)] = struct{}{}
		}
		if spki, err := certenc.PublicKeyBytes(cert); err == nil {
			ps.keyDER[string(spki)] = struct{}{}
		}
	}
	return ps
}

// empty reports whether the snapshot holds no pinned certificates.
func (s *pinSet) empty() bool {
	return len(s.certs) == 0
}

// containsCertificate reports whether the certificate's canonical DER bytes
// are pinned. A certificate whose bytes cannot be derived is a non-match.
func (s *pinSet) containsCertificate(cert *x509.Certificate) bool {
	der, err := certenc.CertificateBytes(cert)
	if err != nil {
		return false
	}
	_, ok := s.certDER[string(der)]
	return ok
}

// containsPublicKey reports whether the certificate's canonical public-key
// bytes are pinned. A certificate whose key cannot be encoded is a non-match.
func (s *pinSet) containsPublicKey(cert *x509.Certificate) bool {
	spki, err := certenc.PublicKeyBytes(cert)
	if err != nil {
		return false
	}
	_, ok := s.keyDER[string(spki)]
	return ok
}

// pinMatchers dispatches membership tests by pinning mode. ModeNone has no
// entry: it never consults the pinned set.
var pinMatchers = map[Mode]func(*pinSet, *x509.Certificate) bool{
	ModeCertificate: (*pinSet).containsCertificate,
	ModePublicKey:   (*pinSet).containsPublicKey,
}
