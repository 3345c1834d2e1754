// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import "fmt"

// Mode selects the pinning strategy applied after chain and host checks.
// The set is closed: dispatch happens once per evaluation over exactly these
// three values, and a policy's mode is fixed at construction time.
type Mode string

const (
	// ModeNone performs no pin matching. Trust follows from chain validity
	// and host verification alone.
	ModeNone Mode = "none"

	// ModePublicKey matches the canonical SubjectPublicKeyInfo encoding of
	// chain certificates against the pinned set. A reissued certificate
	// carrying the same key still matches; a different key never does.
	ModePublicKey Mode = "public-key"

	// ModeCertificate matches the exact DER encoding of chain certificates
	// against the pinned set.
	ModeCertificate Mode = "certificate"
)

// modes enumerates the supported pinning modes.
var modes = map[Mode]struct{}{
	ModeNone:        {},
	ModePublicKey:   {},
	ModeCertificate: {},
}

// Valid reports whether m is a supported pinning mode.
func (m Mode) Valid() bool {
	_, ok := modes[m]
	return ok
}

// ParseMode converts a string into a Mode, accepting the empty string as
// ModeNone. Returns ErrUnknownMode for anything else.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeNone, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}
