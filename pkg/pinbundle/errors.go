// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pinbundle loads pinned certificate sets from directories of
// certificate files and keeps a pinning policy synchronized with them. It
// reads the bundle formats certenc understands, resolves YAML policy files
// into constructed policies, and watches bundle directories so pin rotation
// on disk reaches running policies without a restart.
package pinbundle

import "errors"

var (
	// ErrInvalidConfig indicates required configuration is missing or invalid.
	ErrInvalidConfig = errors.New("pinbundle: invalid configuration")

	// ErrNoCertificates indicates a bundle directory yielded no certificates.
	ErrNoCertificates = errors.New("pinbundle: no certificates found")

	// ErrLoadFailed indicates a bundle directory could not be read.
	ErrLoadFailed = errors.New("pinbundle: bundle load failed")

	// ErrPolicyFile indicates a policy file could not be read or resolved.
	ErrPolicyFile = errors.New("pinbundle: invalid policy file")

	// ErrWatchFailed indicates the filesystem watch could not be established
	// or reported an error.
	ErrWatchFailed = errors.New("pinbundle: watch failed")

	// ErrReloadFailed indicates a bundle reload failed; the previous pinned
	// set remains in effect.
	ErrReloadFailed = errors.New("pinbundle: reload failed")
)
