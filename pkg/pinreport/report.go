// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinreport

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
	"github.com/jeremyhahn/go-certpin/pkg/certpin"
)

// Report is a single pin validation failure in the RFC 7469 section 3
// report style. Certificates travel as PEM strings and expected pins as
// pin-sha256 directives so collectors can process reports without DER
// tooling.
type Report struct {

	// ID uniquely identifies the report for deduplication on the
	// collector side.
	ID string `json:"report-id"`

	// DateTime is when the failure was observed, in UTC.
	DateTime time.Time `json:"date-time"`

	// Hostname is the host the connection was made to.
	Hostname string `json:"hostname"`

	// Port is the TCP port of the connection, when known.
	Port int `json:"port,omitempty"`

	// Mode is the pinning mode in effect ("none", "public-key",
	// "certificate").
	Mode string `json:"mode"`

	// Reason classifies the rejection.
	Reason string `json:"reason"`

	// ServedChain is the certificate chain the server presented, each
	// element PEM-encoded.
	ServedChain []string `json:"served-certificate-chain,omitempty"`

	// KnownPins lists the pins the policy expected, each formatted as
	// an RFC 7469 pin-sha256 directive.
	KnownPins []string `json:"known-pins,omitempty"`
}

// NewReport builds a report from a policy failure. The report carries a
// fresh UUID and the current UTC time.
func NewReport(failure certpin.Failure) *Report {
	report := &Report{
		ID:       uuid.NewString(),
		DateTime: time.Now().UTC(),
		Hostname: failure.Host,
		Mode:     string(failure.Mode),
		Reason:   string(failure.Reason),
	}

	for _, cert := range failure.Chain {
		if cert == nil {
			continue
		}
		report.ServedChain = append(report.ServedChain, string(certenc.EncodePEM(cert)))
	}
	for _, pin := range failure.Pins {
		if pin == nil {
			continue
		}
		report.KnownPins = append(report.KnownPins,
			fmt.Sprintf("pin-sha256=%q", certenc.SPKIFingerprintBase64(pin)))
	}

	return report
}
