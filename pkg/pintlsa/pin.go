// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pintlsa

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// Certificate Usage values as defined in RFC 6698 Section 2.1.1. Usage
// travels with a pin for zone generation and operator context; it does not
// change how the association data is matched.
const (
	// UsageCAConstraint (PKIX-TA) constrains which CA may issue for the
	// service and expects PKIX validation alongside the pin.
	UsageCAConstraint uint8 = 0

	// UsageServiceCert (PKIX-EE) pins an end-entity certificate and
	// expects PKIX validation alongside the pin.
	UsageServiceCert uint8 = 1

	// UsageTrustAnchor (DANE-TA) declares a trust anchor for the domain.
	// The published pin itself establishes trust.
	UsageTrustAnchor uint8 = 2

	// UsageEndEntity (DANE-EE) pins an end-entity certificate. The
	// published pin itself establishes trust.
	UsageEndEntity uint8 = 3
)

// Selector values as defined in RFC 6698 Section 2.1.2. The selector picks
// which part of a certificate the pin binds: the full DER certificate or
// only its SubjectPublicKeyInfo, matching the two pinning modes.
const (
	// SelectorFullCert pins the full DER-encoded certificate.
	SelectorFullCert uint8 = 0

	// SelectorSPKI pins the DER-encoded SubjectPublicKeyInfo.
	SelectorSPKI uint8 = 1
)

// Matching Type values as defined in RFC 6698 Section 2.1.3.
const (
	// MatchingExact compares the selected bytes directly.
	MatchingExact uint8 = 0

	// MatchingSHA256 compares a SHA-256 digest of the selected bytes.
	MatchingSHA256 uint8 = 1

	// MatchingSHA512 compares a SHA-512 digest of the selected bytes.
	MatchingSHA512 uint8 = 2
)

// Pin is one DNS-published certificate association. It is a value type:
// pins are compared, copied, and passed around by value, and the Data slice
// is never mutated after construction.
type Pin struct {

	// Usage is the Certificate Usage field (0-3).
	Usage uint8

	// Selector is the Selector field (0-1).
	Selector uint8

	// MatchingType is the Matching Type field (0-2).
	MatchingType uint8

	// Data is the Certificate Association Data: a digest or the raw
	// selected bytes depending on MatchingType.
	Data []byte
}

// selectorFuncs maps a selector to the certificate bytes it pins.
var selectorFuncs = map[uint8]func(*x509.Certificate) []byte{
	SelectorFullCert: func(c *x509.Certificate) []byte { return c.Raw },
	SelectorSPKI:     func(c *x509.Certificate) []byte { return c.RawSubjectPublicKeyInfo },
}

// matcherFuncs maps a matching type to its presentation of the selected bytes.
var matcherFuncs = map[uint8]func([]byte) []byte{
	MatchingExact:  func(d []byte) []byte { return d },
	MatchingSHA256: func(d []byte) []byte { h := sha256.Sum256(d); return h[:] },
	MatchingSHA512: func(d []byte) []byte { h := sha512.Sum512(d); return h[:] },
}

// ComputeAssociation derives the association data a pin with the given
// selector and matching type would carry for the certificate.
func ComputeAssociation(cert *x509.Certificate, selector, matchingType uint8) ([]byte, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	selectBytes, ok := selectorFuncs[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSelector, selector)
	}
	present, ok := matcherFuncs[matchingType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMatching, matchingType)
	}
	return present(selectBytes(cert)), nil
}

// NewPin computes a pin for the certificate with the given TLSA parameters.
func NewPin(cert *x509.Certificate, usage, selector, matchingType uint8) (Pin, error) {
	data, err := ComputeAssociation(cert, selector, matchingType)
	if err != nil {
		return Pin{}, err
	}
	return Pin{
		Usage:        usage,
		Selector:     selector,
		MatchingType: matchingType,
		Data:         data,
	}, nil
}

// Verify checks the certificate against the pin. The comparison is
// constant time.
func (p Pin) Verify(cert *x509.Certificate) error {
	computed, err := ComputeAssociation(cert, p.Selector, p.MatchingType)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computed, p.Data) != 1 {
		return ErrNoMatch
	}
	return nil
}

// String renders the pin in TLSA presentation order: usage, selector,
// matching type, hex association data.
func (p Pin) String() string {
	return fmt.Sprintf("%d %d %d %s", p.Usage, p.Selector, p.MatchingType, hex.EncodeToString(p.Data))
}

// VerifyChain reports whether at least one certificate in the chain matches
// at least one pin. Nil chain elements are skipped. Any single match
// satisfies the published policy.
func VerifyChain(chain []*x509.Certificate, pins []Pin) error {
	if len(chain) == 0 {
		return ErrNoCertificates
	}
	if len(pins) == 0 {
		return ErrNoPins
	}
	for _, cert := range chain {
		if cert == nil {
			continue
		}
		for _, pin := range pins {
			if err := pin.Verify(cert); err == nil {
				return nil
			}
		}
	}
	return ErrNoMatch
}
