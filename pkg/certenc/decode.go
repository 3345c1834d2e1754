// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package certenc

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cloudflare/cfssl/crypto/pkcs7"
)

// pemCertificateType is the PEM block type for X.509 certificates.
const pemCertificateType = "CERTIFICATE"

// ParseCertificates parses one or more certificates from data. The format is
// sniffed in order: PEM (one or more CERTIFICATE blocks; other block types
// and unparseable blocks are skipped), raw DER (single or concatenated
// certificates), and finally PKCS#7 SignedData containers (.p7b/.p7c).
// Returns ErrNoCertificates when the data holds no usable certificate.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	if len(data) == 0 {
		return nil, ErrNoCertificates
	}

	if isPEM(data) {
		return parsePEM(data)
	}

	certs, err := x509.ParseCertificates(data)
	if err == nil && len(certs) > 0 {
		return certs, nil
	}

	p, p7err := pkcs7.ParsePKCS7(data)
	if p7err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCertificate, err)
	}
	if len(p.Content.SignedData.Certificates) == 0 {
		return nil, ErrNoCertificates
	}
	return p.Content.SignedData.Certificates, nil
}

// isPEM reports whether data begins with a decodable PEM block.
func isPEM(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// parsePEM collects all parseable CERTIFICATE blocks from PEM data.
func parsePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != pemCertificateType {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return certs, nil
}

// EncodePEM encodes a certificate's canonical DER bytes as a PEM block.
// Returns nil for a nil certificate or one without a DER encoding.
func EncodePEM(cert *x509.Certificate) []byte {
	der, err := CertificateBytes(cert)
	if err != nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemCertificateType, Bytes: der})
}

// EncodePEMBundle encodes certificates as concatenated PEM blocks,
// skipping entries without a DER encoding.
func EncodePEMBundle(certs []*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, EncodePEM(cert)...)
	}
	return out
}
