// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinbundle

import (
	"crypto/x509"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
)

// bundleExtensions are the file suffixes recognized as certificate material.
var bundleExtensions = map[string]struct{}{
	".pem": {},
	".crt": {},
	".cer": {},
	".der": {},
	".p7b": {},
	".p7c": {},
}

// LoaderConfig configures a bundle loader.
type LoaderConfig struct {

	// FS is the filesystem to read bundles from. Nil means the host
	// filesystem rooted at the directory passed to Load.
	FS fs.FS

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Loader reads certificate bundles from a directory. Files with unrecognized
// extensions are ignored; files that fail to decode are skipped with a
// warning so one corrupt file cannot block a pin rotation.
type Loader struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewLoader creates a bundle loader.
func NewLoader(cfg *LoaderConfig) (*Loader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fsys:   cfg.FS,
		logger: logger.With("component", "bundle_loader"),
	}, nil
}

// Load reads every certificate file directly under dir and returns the
// deduplicated certificates in filename order. Returns ErrNoCertificates
// when nothing decodes.
func (l *Loader) Load(dir string) ([]*x509.Certificate, error) {
	fsys := l.fsys
	root := dir
	if fsys == nil {
		fsys = os.DirFS(dir)
		root = "."
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	seen := make(map[string]struct{})
	var certs []*x509.Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if _, ok := bundleExtensions[ext]; !ok {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(root, entry.Name()))
		if err != nil {
			l.logger.Warn("skipping unreadable bundle file",
				"file", entry.Name(), "error", err)
			continue
		}
		parsed, err := certenc.ParseCertificates(data)
		if err != nil {
			l.logger.Warn("skipping undecodable bundle file",
				"file", entry.Name(), "error", err)
			continue
		}
		for _, cert := range parsed {
			if _, dup := seen[string(cert.Raw)]; dup {
				continue
			}
			seen[string(cert.Raw)] = struct{}{}
			certs = append(certs, cert)
		}
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, dir)
	}

	l.logger.Debug("certificate bundle loaded",
		"dir", dir, "certificates", len(certs))
	return certs, nil
}

// LoadDir reads the certificate bundle under dir on the host filesystem.
func LoadDir(dir string) ([]*x509.Certificate, error) {
	loader, err := NewLoader(&LoaderConfig{})
	if err != nil {
		return nil, err
	}
	return loader.Load(dir)
}
