// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
)

// policyJSON is the wire form of a policy. Pins are standard base64 of the
// canonical DER certificate bytes. The boolean fields name the non-default
// state and are omitted otherwise, so absent fields decode to the default
// policy behavior.
type policyJSON struct {
	Mode                     Mode     `json:"mode"`
	AllowInvalidCertificates bool     `json:"allow_invalid_certificates,omitempty"`
	SkipHostVerification     bool     `json:"skip_host_verification,omitempty"`
	Pins                     []string `json:"pins,omitempty"`
}

// Clone returns a policy with the same mode, flags, and wiring, sharing the
// current pinned snapshot. The clones diverge once either side calls
// SetPins.
func (p *Policy) Clone() *Policy {
	clone := &Policy{
		mode:         p.mode,
		allowInvalid: p.allowInvalid,
		validateHost: p.validateHost,
		verifier:     p.verifier,
		reporter:     p.reporter,
		logger:       p.logger,
	}
	clone.pins.Store(p.pins.Load())
	return clone
}

// MarshalJSON encodes the policy by value: mode, flags, and the pinned
// certificate snapshot at the time of the call.
func (p *Policy) MarshalJSON() ([]byte, error) {
	snapshot := p.pins.Load()
	out := policyJSON{
		Mode:                     p.mode,
		AllowInvalidCertificates: p.allowInvalid,
		SkipHostVerification:     !p.validateHost,
	}
	for _, cert := range snapshot.certs {
		der, err := certenc.CertificateBytes(cert)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
		}
		out.Pins = append(out.Pins, base64.StdEncoding.EncodeToString(der))
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a policy encoded by MarshalJSON. Undecodable pins
// and unknown modes fail here rather than at evaluation time. Verifier,
// reporter, and logger already set on the receiver are kept, so decoding
// into a constructed policy preserves its wiring; decoding into a zero
// value installs the defaults.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var in policyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	mode := in.Mode
	if mode == "" {
		mode = ModeNone
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrSerialization, ErrUnknownMode, in.Mode)
	}

	pins := make([]*x509.Certificate, 0, len(in.Pins))
	for i, encoded := range in.Pins {
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: pin %d: %w", ErrSerialization, i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("%w: pin %d: %w", ErrSerialization, i, err)
		}
		pins = append(pins, cert)
	}

	p.mode = mode
	p.allowInvalid = in.AllowInvalidCertificates
	p.validateHost = !in.SkipHostVerification
	if p.verifier == nil {
		p.verifier = &SystemVerifier{}
	}
	if p.logger == nil {
		p.logger = slog.Default().With("component", "pinning_policy")
	}
	p.pins.Store(newPinSet(pins))
	return nil
}
