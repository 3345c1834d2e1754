// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package certenc provides canonical byte encodings for X.509 certificates
// and their public keys, plus decoding of certificate material from PEM,
// DER, and PKCS#7 containers. The canonical encodings are deterministic:
// equal certificates and equal public keys always compare byte-identical,
// which is what pinning comparisons rely on.
package certenc

import "errors"

var (
	// ErrNilCertificate is returned when a nil certificate is provided.
	ErrNilCertificate = errors.New("certenc: nil certificate")

	// ErrNoRawEncoding is returned when a certificate carries no DER encoding,
	// typically because it was constructed in memory rather than parsed.
	ErrNoRawEncoding = errors.New("certenc: certificate has no DER encoding")

	// ErrKeyEncoding is returned when a certificate's public key cannot be
	// rendered in canonical PKIX form.
	ErrKeyEncoding = errors.New("certenc: public key cannot be encoded")

	// ErrNoCertificates is returned when no certificates are found in the
	// provided data.
	ErrNoCertificates = errors.New("certenc: no certificates found")

	// ErrParseCertificate is returned when certificate data cannot be parsed
	// in any supported format.
	ErrParseCertificate = errors.New("certenc: failed to parse certificate data")
)
