// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
)

// pinEntry is the JSON output shape for a single certificate's pins.
type pinEntry struct {
	File       string `json:"file"`
	Subject    string `json:"subject"`
	CertSHA256 string `json:"cert_sha256"`
	SPKISHA256 string `json:"spki_sha256"`
	PinSHA256  string `json:"pin_sha256"`
}

// pinCmd computes canonical certificate and public key pins from local
// certificate files.
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Compute certificate and SPKI pins from certificate files",
	Long: `Compute the canonical SHA-256 fingerprints used for pinning from one or
more local certificate files (PEM, DER, or PKCS#7).

Two pins are computed per certificate: the certificate pin (hash of the
DER encoding, matched byte for byte in certificate mode) and the SPKI pin
(hash of the SubjectPublicKeyInfo, which survives reissue with the same
key and is the pin-sha256 value used by RFC 7469 reports).`,
	RunE: runPin,
}

func init() {
	pinCmd.Flags().StringArray("cert", nil, "certificate file (repeatable) (required)")
	pinCmd.Flags().String("encoding", "hex", "fingerprint encoding (hex|base64)")
	pinCmd.Flags().Bool("json", false, "emit JSON instead of a table")
}

func runPin(cmd *cobra.Command, args []string) error {
	certFiles, _ := cmd.Flags().GetStringArray("cert")
	encoding, _ := cmd.Flags().GetString("encoding")
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(certFiles) == 0 {
		return fmt.Errorf("%w: at least one --cert is required", ErrInvalidInput)
	}
	if encoding != "hex" && encoding != "base64" {
		return fmt.Errorf("%w: --encoding must be hex or base64", ErrInvalidInput)
	}

	var entries []pinEntry
	for _, file := range certFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		certs, err := certenc.ParseCertificates(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidInput, file, err)
		}

		slog.Debug("computed pins", "file", file, "certificates", len(certs))

		for _, cert := range certs {
			entry := pinEntry{
				File:      file,
				Subject:   cert.Subject.String(),
				PinSHA256: fmt.Sprintf("pin-sha256=%q", certenc.SPKIFingerprintBase64(cert)),
			}
			if encoding == "base64" {
				entry.CertSHA256 = certenc.CertFingerprintBase64(cert)
				entry.SPKISHA256 = certenc.SPKIFingerprintBase64(cert)
			} else {
				entry.CertSHA256 = certenc.CertFingerprint(cert)
				entry.SPKISHA256 = certenc.SPKIFingerprint(cert)
			}
			entries = append(entries, entry)
		}
	}

	if asJSON {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		return writeOutput(append(out, '\n'))
	}

	return writeOutput([]byte(renderPinTable(entries)))
}

// renderPinTable renders pin entries as a markdown table.
func renderPinTable(entries []pinEntry) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"File", "Subject", "Cert SHA-256", "SPKI SHA-256"})

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.File, e.Subject, e.CertSHA256, e.SPKISHA256})
	}
	table.Bulk(rows)
	table.Render()
	return buf.String()
}
