// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certpin

import (
	"crypto/x509"
	"encoding/asn1"
	"net"
	"strings"
)

var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

// matchesHost reports whether the certificate is bound to host. IP literals,
// with or without URI brackets, are matched against the certificate's IP
// subject alternative names only, per RFC 6125 appendix B.2. DNS names come
// from the SAN extension; the subject common name is consulted only for
// legacy certificates carrying no SAN extension at all. Wildcard patterns
// match a single leftmost label, so *.example.com covers api.example.com but
// neither example.com nor a.b.example.com.
func matchesHost(cert *x509.Certificate, host string) bool {
	if cert == nil || host == "" {
		return false
	}

	candidateIP := host
	if len(host) >= 3 && host[0] == '[' && host[len(host)-1] == ']' {
		candidateIP = host[1 : len(host)-1]
	}
	if ip := net.ParseIP(candidateIP); ip != nil {
		for _, san := range cert.IPAddresses {
			if ip.Equal(san) {
				return true
			}
		}
		return false
	}

	candidate := asciiLower(host)
	validCandidate := validHostname(candidate, false)
	for _, name := range hostCandidates(cert) {
		if validCandidate && validHostname(name, true) {
			if matchWildcard(asciiLower(name), candidate) {
				return true
			}
			continue
		}
		// Names outside the hostname grammar still get a literal,
		// case-insensitive comparison.
		if name != "" && name != "." && asciiLower(name) == candidate {
			return true
		}
	}
	return false
}

// hostCandidates returns the names a host may be matched against. The common
// name is used only when the certificate has no SAN extension and the name
// parses as a hostname, mirroring how legacy certificates were issued before
// SANs were mandatory.
func hostCandidates(cert *x509.Certificate) []string {
	if hasSANExtension(cert) {
		return cert.DNSNames
	}
	if cn := cert.Subject.CommonName; validHostname(cn, false) {
		return []string{cn}
	}
	return nil
}

func hasSANExtension(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidSubjectAltName) {
			return true
		}
	}
	return false
}

// matchWildcard compares a lowercase pattern against a lowercase host label
// by label. Only a full leftmost "*" label acts as a wildcard and it consumes
// exactly one label, so patterns never match across label boundaries.
func matchWildcard(pattern, host string) bool {
	host = strings.TrimSuffix(host, ".")
	if pattern == "" || host == "" {
		return false
	}

	patternLabels := strings.Split(pattern, ".")
	hostLabels := strings.Split(host, ".")
	if len(patternLabels) != len(hostLabels) {
		return false
	}

	for i, label := range patternLabels {
		if i == 0 && label == "*" {
			continue
		}
		if label != hostLabels[i] {
			return false
		}
	}
	return true
}

// validHostname reports whether host looks like a DNS hostname. When
// isPattern is set, a full leftmost "*" label is permitted. Underscores are
// tolerated because they are common in deployments outside the public web
// PKI even though RFC 1035 forbids them.
func validHostname(host string, isPattern bool) bool {
	if !isPattern {
		host = strings.TrimSuffix(host, ".")
	}
	if host == "" {
		return false
	}

	for i, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
		if isPattern && i == 0 && label == "*" {
			continue
		}
		for j := 0; j < len(label); j++ {
			c := label[j]
			switch {
			case 'a' <= c && c <= 'z':
			case 'A' <= c && c <= 'Z':
			case '0' <= c && c <= '9':
			case c == '-' && j != 0:
			case c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// asciiLower lowercases ASCII letters without touching other bytes, so it is
// safe on arbitrary input including invalid UTF-8.
func asciiLower(s string) string {
	lower := true
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			lower = false
			break
		}
	}
	if lower {
		return s
	}

	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
