// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package certpin implements certificate and public-key pinning policies for
// TLS server trust evaluation. A Policy combines three checks over a
// presented certificate chain: chain-of-authority validity, host name
// binding, and pinned-material matching. Pinning binds a client to an
// operator-controlled set of certificates or public keys so that a
// compromised or coerced certificate authority cannot silently substitute a
// different endpoint identity.
//
// Every trust decision resolves to a single boolean from Policy.Evaluate;
// logging and failure reporting are side channels that never influence the
// result.
package certpin

import "errors"

var (
	// ErrInvalidConfig indicates the policy or dialer configuration is
	// invalid or missing required fields.
	ErrInvalidConfig = errors.New("certpin: invalid configuration")

	// ErrUnknownMode indicates a pinning mode outside the supported set.
	ErrUnknownMode = errors.New("certpin: unknown pinning mode")

	// ErrNoCertificates is returned when no certificates are presented
	// during TLS verification.
	ErrNoCertificates = errors.New("certpin: no certificates presented")

	// ErrTrustRejected is returned by the TLS integration when the policy
	// rejects a presented chain.
	ErrTrustRejected = errors.New("certpin: server trust rejected by pinning policy")

	// ErrChainVerification indicates the chain could not be validated up to
	// a trusted root.
	ErrChainVerification = errors.New("certpin: certificate chain verification failed")

	// ErrDialFailed indicates a pinned TLS connection could not be
	// established.
	ErrDialFailed = errors.New("certpin: dial failed")

	// ErrOCSPStaple indicates a stapled OCSP response failed verification
	// or reported the certificate revoked.
	ErrOCSPStaple = errors.New("certpin: OCSP staple verification failed")

	// ErrSerialization indicates a policy could not be encoded or decoded.
	ErrSerialization = errors.New("certpin: policy serialization failed")
)
