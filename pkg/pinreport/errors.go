// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pinreport submits and collects pin validation failure reports.
// The wire format follows the report style of HPKP (RFC 7469 section 3):
// a JSON document carrying the hostname, the served certificate chain in
// PEM form, and the pins that were expected. The Client side implements
// the policy Reporter interface and posts reports without blocking the
// TLS handshake path; the Server side validates incoming reports against
// a JSON schema and hands them to a configurable sink.
package pinreport

import "errors"

// Configuration errors.
var (
	// ErrInvalidConfig is returned when a client or server configuration
	// is missing or contains invalid values.
	ErrInvalidConfig = errors.New("pinreport: invalid configuration")
)

// Report errors.
var (
	// ErrInvalidReport is returned when a report is nil, cannot be
	// serialized, or does not conform to the report schema.
	ErrInvalidReport = errors.New("pinreport: invalid report")

	// ErrSubmitFailed is returned when a report could not be delivered
	// to the collection endpoint.
	ErrSubmitFailed = errors.New("pinreport: report submission failed")
)

// Server errors.
var (
	// ErrListenFailed is returned when the report server cannot bind
	// its listen address.
	ErrListenFailed = errors.New("pinreport: listen failed")
)
