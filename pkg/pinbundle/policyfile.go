// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinbundle

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
	"github.com/jeremyhahn/go-certpin/pkg/certpin"
)

// PolicyFile is the on-disk YAML form of a pinning policy. Pin and bundle
// paths are resolved relative to the policy file's directory unless
// absolute.
type PolicyFile struct {

	// Mode is the pinning mode: "none", "public-key", or "certificate".
	// Empty means no pinning.
	Mode string `yaml:"mode"`

	// Pins lists certificate files whose contents are pinned.
	Pins []string `yaml:"pins"`

	// BundleDir names a directory of certificate files to pin.
	BundleDir string `yaml:"bundle_dir"`

	// AllowInvalidCertificates skips chain validation.
	AllowInvalidCertificates bool `yaml:"allow_invalid_certificates"`

	// SkipHostVerification disables hostname matching.
	SkipHostVerification bool `yaml:"skip_host_verification"`
}

// ParsePolicyFile reads and parses a policy file without constructing the
// policy.
func ParsePolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyFile, err)
	}
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrPolicyFile, path, err)
	}
	return &pf, nil
}

// LoadPolicyConfig resolves the policy file at path into a policy
// configuration: the mode is parsed and every pin source is read. Callers
// may attach a verifier, reporter, or logger before constructing the
// policy.
func LoadPolicyConfig(path string) (*certpin.PolicyConfig, error) {
	pf, err := ParsePolicyFile(path)
	if err != nil {
		return nil, err
	}

	mode, err := certpin.ParseMode(pf.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyFile, err)
	}

	pins, err := pf.resolvePins(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	return &certpin.PolicyConfig{
		Mode:                     mode,
		Pins:                     pins,
		AllowInvalidCertificates: pf.AllowInvalidCertificates,
		SkipHostVerification:     pf.SkipHostVerification,
	}, nil
}

// LoadPolicy constructs the policy described by the file at path.
func LoadPolicy(path string) (*certpin.Policy, error) {
	cfg, err := LoadPolicyConfig(path)
	if err != nil {
		return nil, err
	}

	policy, err := certpin.NewPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyFile, err)
	}
	return policy, nil
}

// resolvePins gathers the certificates from the file's pin sources, with
// relative paths anchored at baseDir.
func (pf *PolicyFile) resolvePins(baseDir string) ([]*x509.Certificate, error) {
	seen := make(map[string]struct{})
	var pins []*x509.Certificate

	add := func(certs []*x509.Certificate) {
		for _, cert := range certs {
			if _, dup := seen[string(cert.Raw)]; dup {
				continue
			}
			seen[string(cert.Raw)] = struct{}{}
			pins = append(pins, cert)
		}
	}

	for _, pinPath := range pf.Pins {
		resolved := pinPath
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("%w: pin %s: %w", ErrPolicyFile, pinPath, err)
		}
		certs, err := certenc.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%w: pin %s: %w", ErrPolicyFile, pinPath, err)
		}
		add(certs)
	}

	if pf.BundleDir != "" {
		resolved := pf.BundleDir
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		certs, err := LoadDir(resolved)
		if err != nil {
			return nil, fmt.Errorf("%w: bundle %s: %w", ErrPolicyFile, pf.BundleDir, err)
		}
		add(certs)
	}

	return pins, nil
}
