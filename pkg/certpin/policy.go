// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Reason classifies why a policy rejected a server's chain.
type Reason string

const (
	ReasonEmptyChain   Reason = "empty-chain"
	ReasonChainInvalid Reason = "chain-validation-failed"
	ReasonHostMismatch Reason = "host-mismatch"
	ReasonNoPins       Reason = "no-pinned-certificates"
	ReasonPinMismatch  Reason = "pin-mismatch"
)

// Failure describes a single rejected trust evaluation. The chain and pin
// slices are snapshots owned by the receiver and safe to retain.
type Failure struct {
	Host   string
	Mode   Mode
	Reason Reason
	Chain  []*x509.Certificate
	Pins   []*x509.Certificate
}

// Reporter receives pin validation failures. Implementations must not block;
// a policy calls PinFailure synchronously from Evaluate.
type Reporter interface {
	PinFailure(failure Failure)
}

// PolicyConfig configures a pinning policy. The zero value describes the
// default policy: no pinning, chain validation against the system roots, and
// hostname verification enabled.
type PolicyConfig struct {

	// Mode selects the pinning strategy. Empty means ModeNone.
	Mode Mode

	// Pins is the initial pinned certificate set. It may be empty and may
	// be replaced later with SetPins.
	Pins []*x509.Certificate

	// AllowInvalidCertificates skips chain validation entirely. Intended
	// for self-signed deployments where pinning carries the trust.
	AllowInvalidCertificates bool

	// SkipHostVerification disables matching the leaf certificate against
	// the host being contacted.
	SkipHostVerification bool

	// Verifier validates served chains. Nil means a SystemVerifier
	// against the system root store.
	Verifier ChainVerifier

	// Reporter, when set, is notified of every rejection.
	Reporter Reporter

	// Logger is the structured logger. Nil means slog.Default().
	Logger *slog.Logger
}

// Policy decides whether a served certificate chain is trusted for a host.
// Evaluation runs in a fixed order: the chain must be non-empty, it must
// validate (unless AllowInvalidCertificates), the leaf must match the host
// (unless SkipHostVerification or the host is empty), and in a pinning mode
// at least one chain certificate must match the pinned set. Every failure
// resolves to false; there are no error returns from Evaluate.
//
// The mode and validation flags are fixed at construction. The pinned set is
// the one mutable element and is swapped atomically, so a Policy is safe for
// concurrent use across many connections.
type Policy struct {
	mode         Mode
	allowInvalid bool
	validateHost bool
	verifier     ChainVerifier
	reporter     Reporter
	logger       *slog.Logger
	pins         atomic.Pointer[pinSet]
}

// NewPolicy creates a policy from the given configuration.
func NewPolicy(config *PolicyConfig) (*Policy, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}

	mode := config.Mode
	if mode == "" {
		mode = ModeNone
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, config.Mode)
	}

	verifier := config.Verifier
	if verifier == nil {
		verifier = &SystemVerifier{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pinning_policy")

	policy := &Policy{
		mode:         mode,
		allowInvalid: config.AllowInvalidCertificates,
		validateHost: !config.SkipHostVerification,
		verifier:     verifier,
		reporter:     config.Reporter,
		logger:       logger,
	}
	policy.pins.Store(newPinSet(config.Pins))

	if policy.allowInvalid && mode == ModeNone {
		logger.Warn("policy trusts any served certificate",
			"mode", mode,
			"allow_invalid_certificates", true)
	}

	return policy, nil
}

// DefaultPolicy returns the baseline policy: no pinning, chain validation
// against the system roots, and hostname verification enabled.
func DefaultPolicy() *Policy {
	policy, _ := NewPolicy(&PolicyConfig{})
	return policy
}

// NewPinnedPolicy returns a policy in the given pinning mode with the given
// pinned certificates. The pinned set may be empty at construction, but a
// pinning-mode policy with no pins rejects every chain until SetPins
// provides one.
func NewPinnedPolicy(mode Mode, pins []*x509.Certificate) (*Policy, error) {
	return NewPolicy(&PolicyConfig{Mode: mode, Pins: pins})
}

// Evaluate reports whether the served chain, leaf first, is trusted for
// host. An empty host skips hostname verification for this call only.
func (p *Policy) Evaluate(chain []*x509.Certificate, host string) bool {
	if len(chain) == 0 {
		return p.reject(chain, host, ReasonEmptyChain, nil)
	}

	if !p.allowInvalid {
		if err := p.verifier.Verify(chain); err != nil {
			return p.reject(chain, host, ReasonChainInvalid, err)
		}
	}

	if p.validateHost && host != "" && !matchesHost(chain[0], host) {
		return p.reject(chain, host, ReasonHostMismatch, nil)
	}

	if p.mode == ModeNone {
		return true
	}

	pins := p.pins.Load()
	if pins.empty() {
		return p.reject(chain, host, ReasonNoPins, nil)
	}
	matches := pinMatchers[p.mode]
	for _, cert := range chain {
		if matches(pins, cert) {
			return true
		}
	}
	return p.reject(chain, host, ReasonPinMismatch, nil)
}

// Mode returns the pinning mode fixed at construction.
func (p *Policy) Mode() Mode {
	return p.mode
}

// AllowsInvalidCertificates reports whether chain validation is skipped.
func (p *Policy) AllowsInvalidCertificates() bool {
	return p.allowInvalid
}

// ValidatesHostname reports whether the leaf is matched against the host.
func (p *Policy) ValidatesHostname() bool {
	return p.validateHost
}

// Pins returns a copy of the current pinned certificate set.
func (p *Policy) Pins() []*x509.Certificate {
	snapshot := p.pins.Load()
	pins := make([]*x509.Certificate, len(snapshot.certs))
	copy(pins, snapshot.certs)
	return pins
}

// SetPins atomically replaces the pinned certificate set. Evaluations in
// flight finish against the snapshot they loaded; new evaluations see the
// replacement.
func (p *Policy) SetPins(pins []*x509.Certificate) {
	p.pins.Store(newPinSet(pins))
}

func (p *Policy) reject(chain []*x509.Certificate, host string, reason Reason, cause error) bool {
	attrs := []any{
		"host", host,
		"mode", p.mode,
		"reason", reason,
		"chain_length", len(chain),
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	p.logger.Warn("server trust rejected", attrs...)

	if p.reporter != nil {
		p.reporter.PinFailure(Failure{
			Host:   host,
			Mode:   p.mode,
			Reason: reason,
			Chain:  append([]*x509.Certificate(nil), chain...),
			Pins:   p.Pins(),
		})
	}
	return false
}
