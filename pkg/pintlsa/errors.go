// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pintlsa publishes and verifies certificate pins through DNS TLSA
// records (RFC 6698). It turns TLSA answers into pin values that can be
// checked against served certificate chains, and renders zone file records
// for the certificates an operator wants to pin.
package pintlsa

import "errors"

// DNS lookup errors indicate issues resolving TLSA records.
var (
	// ErrLookupFailed indicates the DNS query for TLSA records failed.
	ErrLookupFailed = errors.New("pintlsa: DNS lookup failed")

	// ErrNoPins indicates the queried name published no TLSA records.
	ErrNoPins = errors.New("pintlsa: no TLSA records found")

	// ErrDNSSECRequired indicates DNSSEC validation is required but the
	// Authenticated Data (AD) flag was not set in the DNS response.
	ErrDNSSECRequired = errors.New("pintlsa: DNSSEC validation required but AD flag not set")
)

// Verification errors indicate issues matching certificates against pins.
var (
	// ErrNoMatch indicates no certificate matched any pin.
	ErrNoMatch = errors.New("pintlsa: no certificate matched any pin")

	// ErrUnsupportedSelector indicates the selector field value is not supported.
	ErrUnsupportedSelector = errors.New("pintlsa: unsupported selector")

	// ErrUnsupportedMatching indicates the matching type field value is not supported.
	ErrUnsupportedMatching = errors.New("pintlsa: unsupported matching type")
)

// Input validation errors indicate invalid parameters were provided.
var (
	// ErrNilCertificate indicates a nil certificate was provided.
	ErrNilCertificate = errors.New("pintlsa: nil certificate")

	// ErrNoCertificates indicates an empty certificate chain was provided.
	ErrNoCertificates = errors.New("pintlsa: no certificates")

	// ErrInvalidHostname indicates an empty or malformed hostname was provided.
	ErrInvalidHostname = errors.New("pintlsa: invalid hostname")

	// ErrInvalidPort indicates port number zero was provided.
	ErrInvalidPort = errors.New("pintlsa: invalid port")
)

// Configuration errors indicate issues with resolver setup.
var (
	// ErrResolverConfig indicates the resolver configuration is invalid.
	ErrResolverConfig = errors.New("pintlsa: invalid resolver configuration")
)
