// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certenc

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
)

// CertFingerprint computes the SHA-256 hash of a certificate's canonical DER
// encoding. Returns the hex-encoded hash string.
func CertFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}

// CertFingerprintBase64 computes the SHA-256 hash of a certificate's
// canonical DER encoding and returns it base64-encoded.
func CertFingerprintBase64(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base64.StdEncoding.EncodeToString(hash[:])
}

// SPKIFingerprint computes the SHA-256 hash of a certificate's
// SubjectPublicKeyInfo (SPKI). Returns the hex-encoded hash string.
func SPKIFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}

// SPKIFingerprintBase64 computes the SHA-256 hash of a certificate's
// SubjectPublicKeyInfo and returns it base64-encoded, the interchange form
// used by HPKP pin-sha256 directives (RFC 7469).
func SPKIFingerprintBase64(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(hash[:])
}
