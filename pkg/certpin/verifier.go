// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/x509"
	"fmt"
	"time"
)

// ChainVerifier checks that a served certificate chain is valid. The leaf is
// the first element. Implementations return nil for a valid chain and a
// descriptive error otherwise.
type ChainVerifier interface {
	Verify(chain []*x509.Certificate) error
}

// SystemVerifier validates chains against an x509 certificate pool using the
// standard path-building rules. The zero value verifies against the system
// root store at the current time.
type SystemVerifier struct {

	// Roots is the pool of trusted roots. Nil means the system root store.
	Roots *x509.CertPool

	// Now supplies the verification time. Nil means time.Now.
	Now func() time.Time
}

// Verify builds a path from the leaf to a trusted root, treating every
// non-leaf element of the chain as a candidate intermediate.
func (v *SystemVerifier) Verify(chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return ErrNoCertificates
	}
	opts := x509.VerifyOptions{
		Roots:         v.Roots,
		Intermediates: x509.NewCertPool(),
	}
	if v.Now != nil {
		opts.CurrentTime = v.Now()
	}
	for _, cert := range chain[1:] {
		opts.Intermediates.AddCert(cert)
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return fmt.Errorf("%w: %w", ErrChainVerification, err)
	}
	return nil
}
