// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pintlsa

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// Record is a TLSA record rendered for a DNS zone file.
type Record struct {

	// Name is the DNS owner name (e.g., "_443._tcp.api.example.com.").
	Name string

	// Usage is the Certificate Usage field.
	Usage uint8

	// Selector is the Selector field.
	Selector uint8

	// MatchingType is the Matching Type field.
	MatchingType uint8

	// HexData is the hex-encoded Certificate Association Data.
	HexData string

	// ZoneLine is the full zone file line
	// (e.g., "_443._tcp.api.example.com. IN TLSA 3 1 1 a1b2c3...").
	ZoneLine string
}

// publishedVariants are the parameter combinations ZoneRecords emits:
// end-entity pins over both selectors and both digest algorithms.
var publishedVariants = []struct {
	usage        uint8
	selector     uint8
	matchingType uint8
}{
	{UsageEndEntity, SelectorFullCert, MatchingSHA256}, // 3 0 1
	{UsageEndEntity, SelectorSPKI, MatchingSHA256},     // 3 1 1
	{UsageEndEntity, SelectorFullCert, MatchingSHA512}, // 3 0 2
	{UsageEndEntity, SelectorSPKI, MatchingSHA512},     // 3 1 2
}

// ZoneRecord renders a single TLSA record for the certificate with full
// control over the TLSA parameters.
func ZoneRecord(cert *x509.Certificate, host string, port uint16, usage, selector, matchingType uint8) (*Record, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	if host == "" {
		return nil, ErrInvalidHostname
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}

	data, err := ComputeAssociation(cert, selector, matchingType)
	if err != nil {
		return nil, err
	}

	name := tlsaName(host, port)
	hexData := hex.EncodeToString(data)
	return &Record{
		Name:         name,
		Usage:        usage,
		Selector:     selector,
		MatchingType: matchingType,
		HexData:      hexData,
		ZoneLine:     fmt.Sprintf("%s IN TLSA %d %d %d %s", name, usage, selector, matchingType, hexData),
	}, nil
}

// DefaultZoneRecord renders the recommended record for end-entity pinning:
// Usage=3 (DANE-EE), Selector=1 (SPKI), MatchingType=1 (SHA-256). SPKI over
// the full certificate keeps the record stable across reissuance with the
// same key.
func DefaultZoneRecord(cert *x509.Certificate, host string, port uint16) (*Record, error) {
	return ZoneRecord(cert, host, port, UsageEndEntity, SelectorSPKI, MatchingSHA256)
}

// ZoneRecords renders every published variant for the certificate, letting
// an operator pick the selector and digest their tooling prefers.
func ZoneRecords(cert *x509.Certificate, host string, port uint16) ([]*Record, error) {
	if cert == nil {
		return nil, ErrNilCertificate
	}
	if host == "" {
		return nil, ErrInvalidHostname
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}

	records := make([]*Record, 0, len(publishedVariants))
	for _, v := range publishedVariants {
		rec, err := ZoneRecord(cert, host, port, v.usage, v.selector, v.matchingType)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
