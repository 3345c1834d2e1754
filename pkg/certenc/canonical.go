// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certenc

import (
	"crypto/x509"
	"fmt"
)

// CertificateBytes returns the canonical encoding of a certificate: its
// DER bytes exactly as presented on the wire. Two certificates are the same
// certificate if and only if these bytes are identical, which makes the
// result suitable for exact-match pinning comparisons.
func CertificateBytes(cert *x509.Certificate) ([]byte, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	if len(cert.Raw) == 0 {
		return nil, ErrNoRawEncoding
	}
	return cert.Raw, nil
}

// PublicKeyBytes returns the canonical PKIX (SubjectPublicKeyInfo) DER
// encoding of the certificate's public key. The encoding depends only on the
// key itself, never on surrounding certificate metadata such as serial
// number, validity period, or extensions, so a reissued certificate carrying
// the same key produces identical bytes.
//
// An error is returned when the key cannot be decoded or re-encoded (nil or
// unsupported key types). Callers performing pin matching treat that as a
// non-match for this certificate rather than aborting the evaluation.
func PublicKeyBytes(cert *x509.Certificate) ([]byte, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyEncoding, err)
	}
	return der, nil
}
