// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
	"github.com/jeremyhahn/go-certpin/pkg/pintlsa"
)

const (
	// defaultTLSAPort is the default TLS port for TLSA records.
	defaultTLSAPort = 443

	// defaultTLSATimeout is the default timeout for DNS resolution and
	// the optional live handshake.
	defaultTLSATimeout = 10 * time.Second
)

// tlsaCmd is the parent command for DNS TLSA pin operations.
var tlsaCmd = &cobra.Command{
	Use:   "tlsa",
	Short: "DNS TLSA pin distribution",
	Long: `Tools for publishing certificate pins as DNS TLSA records (RFC 6698)
and verifying servers against the pins published in DNS.

Subcommands:
  show     - query and display TLSA records for a host and port
  check    - verify a live server (or a certificate file) against DNS pins
  generate - emit TLSA zone file records from a certificate file`,
}

// tlsaShowCmd displays TLSA records from DNS.
var tlsaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display TLSA records for a host",
	Long: `Query DNS for _<port>._tcp.<hostname> TLSA records and display them in
a human-readable format.`,
	RunE: runTLSAShow,
}

// tlsaCheckCmd verifies a server or certificate file against DNS pins.
var tlsaCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a server against its DNS TLSA pins",
	Long: `Resolve the TLSA records for a hostname and port, then verify a
certificate chain against them. By default the chain is taken from a live
TLS handshake with the server; with --cert-file the chain is read from
disk instead.

Verification succeeds when any chain certificate matches any resolved
pin.`,
	RunE: runTLSACheck,
}

// tlsaGenerateCmd generates TLSA zone records from a certificate file.
var tlsaGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate TLSA record(s) for DNS publishing",
	Long: `Generate TLSA record(s) from a PEM certificate file for DNS zone
publishing. By default a single end-entity record with SPKI (1) and
SHA-256 (1) is generated. Use --all to emit the common end-entity
combinations.`,
	RunE: runTLSAGenerate,
}

func init() {
	tlsaCmd.AddCommand(tlsaShowCmd)
	tlsaCmd.AddCommand(tlsaCheckCmd)
	tlsaCmd.AddCommand(tlsaGenerateCmd)

	// Flags for tlsa show.
	tlsaShowCmd.Flags().String("hostname", "", "hostname to query TLSA records for (required)")
	tlsaShowCmd.Flags().Int("port", defaultTLSAPort, "port number for the TLSA record")
	tlsaShowCmd.Flags().String("dns-server", "", "DNS server address (e.g., 8.8.8.8:53)")
	tlsaShowCmd.Flags().Bool("dns-over-tls", false, "use DNS-over-TLS (DoT) for TLSA lookups")
	tlsaShowCmd.Flags().String("dns-tls-server-name", "", "TLS server name for DNS-over-TLS")
	tlsaShowCmd.Flags().Bool("require-ad", false, "require DNSSEC-validated (AD) answers")

	// Flags for tlsa check.
	tlsaCheckCmd.Flags().String("hostname", "", "hostname to verify (required)")
	tlsaCheckCmd.Flags().Int("port", defaultTLSAPort, "port number to verify")
	tlsaCheckCmd.Flags().String("cert-file", "", "verify this certificate file instead of the live server chain")
	tlsaCheckCmd.Flags().String("dns-server", "", "DNS server address (e.g., 8.8.8.8:53)")
	tlsaCheckCmd.Flags().Bool("dns-over-tls", false, "use DNS-over-TLS (DoT) for TLSA lookups")
	tlsaCheckCmd.Flags().String("dns-tls-server-name", "", "TLS server name for DNS-over-TLS")
	tlsaCheckCmd.Flags().Bool("require-ad", false, "require DNSSEC-validated (AD) answers")

	// Flags for tlsa generate.
	tlsaGenerateCmd.Flags().String("cert-file", "", "path to PEM certificate file (required)")
	tlsaGenerateCmd.Flags().String("hostname", "", "hostname for the TLSA record (required)")
	tlsaGenerateCmd.Flags().Int("port", defaultTLSAPort, "port number for the TLSA record")
	tlsaGenerateCmd.Flags().Int("selector", int(pintlsa.SelectorSPKI), "TLSA selector (0=full cert, 1=SPKI)")
	tlsaGenerateCmd.Flags().Int("matching-type", int(pintlsa.MatchingSHA256), "TLSA matching type (0=exact, 1=SHA-256, 2=SHA-512)")
	tlsaGenerateCmd.Flags().Bool("all", false, "generate the common end-entity TLSA record combinations")
}

// newTLSAResolver builds a resolver from the shared DNS flags.
func newTLSAResolver(cmd *cobra.Command) (*pintlsa.Resolver, error) {
	dnsServer, _ := cmd.Flags().GetString("dns-server")
	requireAD, _ := cmd.Flags().GetBool("require-ad")
	dnsOverTLS, _ := cmd.Flags().GetBool("dns-over-tls")
	dnsTLSServerName, _ := cmd.Flags().GetString("dns-tls-server-name")

	resolver, err := pintlsa.NewResolver(&pintlsa.ResolverConfig{
		Server:        dnsServer,
		UseTLS:        dnsOverTLS,
		TLSServerName: dnsTLSServerName,
		RequireAD:     requireAD,
		Logger:        slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolver: %w", ErrInvalidInput, err)
	}
	return resolver, nil
}

func runTLSAShow(cmd *cobra.Command, args []string) error {
	hostname, _ := cmd.Flags().GetString("hostname")
	port, _ := cmd.Flags().GetInt("port")

	if hostname == "" {
		return fmt.Errorf("%w: --hostname is required", ErrInvalidInput)
	}

	resolver, err := newTLSAResolver(cmd)
	if err != nil {
		return err
	}

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	ctx, cancel := context.WithTimeout(sigCtx, defaultTLSATimeout)
	defer cancel()

	slog.Debug("querying TLSA records", "hostname", hostname, "port", port)

	pins, err := resolver.LookupPins(ctx, hostname, uint16(port))
	if err != nil {
		return fmt.Errorf("%w: TLSA lookup: %w", ErrVerificationFailed, err)
	}

	fmt.Printf("TLSA records for _%d._tcp.%s:\n", port, hostname)
	for i, pin := range pins {
		fmt.Printf("  [%d] Usage=%d Selector=%d MatchingType=%d Data=%s\n",
			i+1, pin.Usage, pin.Selector, pin.MatchingType, hex.EncodeToString(pin.Data))
	}
	return nil
}

func runTLSACheck(cmd *cobra.Command, args []string) error {
	hostname, _ := cmd.Flags().GetString("hostname")
	port, _ := cmd.Flags().GetInt("port")
	certFile, _ := cmd.Flags().GetString("cert-file")

	if hostname == "" {
		return fmt.Errorf("%w: --hostname is required", ErrInvalidInput)
	}

	resolver, err := newTLSAResolver(cmd)
	if err != nil {
		return err
	}

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	ctx, cancel := context.WithTimeout(sigCtx, defaultTLSATimeout)
	defer cancel()

	slog.Debug("resolving TLSA pins", "hostname", hostname, "port", port)

	pins, err := resolver.LookupPins(ctx, hostname, uint16(port))
	if err != nil {
		return fmt.Errorf("%w: TLSA lookup: %w", ErrVerificationFailed, err)
	}
	slog.Info("resolved TLSA pins", "hostname", hostname, "port", port, "count", len(pins))

	chain, err := tlsaCheckChain(ctx, hostname, port, certFile)
	if err != nil {
		return err
	}

	fmt.Printf("Verifying %d certificate(s) against %d TLSA pin(s) for _%d._tcp.%s\n\n",
		len(chain), len(pins), port, hostname)

	var matched bool
	for i, pin := range pins {
		verifyErr := pintlsa.VerifyChain(chain, []pintlsa.Pin{pin})
		if verifyErr != nil {
			fmt.Printf("  [%d] FAIL: %s\n", i+1, pin.String())
			continue
		}
		fmt.Printf("  [%d] PASS: %s\n", i+1, pin.String())
		matched = true
	}

	fmt.Println()
	if matched {
		fmt.Println("Result: chain matches the published TLSA pins")
		return nil
	}
	fmt.Println("Result: no TLSA pin matches the chain")
	return fmt.Errorf("%w: no TLSA pin matches the chain", ErrVerificationFailed)
}

// tlsaCheckChain obtains the chain to verify, from a file when --cert-file
// is given and from a live handshake otherwise.
func tlsaCheckChain(ctx context.Context, hostname string, port int, certFile string) ([]*x509.Certificate, error) {
	if certFile != "" {
		data, err := os.ReadFile(certFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		certs, err := certenc.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, certFile, err)
		}
		return certs, nil
	}

	addr := net.JoinHostPort(hostname, strconv.Itoa(port))
	slog.Debug("fetching live chain", "addr", addr)

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: defaultTLSATimeout},
		Config: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         hostname,
			InsecureSkipVerify: true, //nolint:gosec // Trust is decided by the TLSA pins
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrVerificationFailed, addr, err)
	}
	defer conn.Close()

	chain := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s presented no certificates", ErrVerificationFailed, addr)
	}
	return chain, nil
}

func runTLSAGenerate(cmd *cobra.Command, args []string) error {
	certFile, _ := cmd.Flags().GetString("cert-file")
	hostname, _ := cmd.Flags().GetString("hostname")
	port, _ := cmd.Flags().GetInt("port")
	selector, _ := cmd.Flags().GetInt("selector")
	matchingType, _ := cmd.Flags().GetInt("matching-type")
	all, _ := cmd.Flags().GetBool("all")

	if certFile == "" {
		return fmt.Errorf("%w: --cert-file is required", ErrInvalidInput)
	}
	if hostname == "" {
		return fmt.Errorf("%w: --hostname is required", ErrInvalidInput)
	}

	data, err := os.ReadFile(certFile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	certs, err := certenc.ParseCertificates(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidInput, certFile, err)
	}
	cert := certs[0]

	slog.Debug("generating TLSA records", "cert_file", certFile, "hostname", hostname, "port", port, "all", all)

	if all {
		records, genErr := pintlsa.ZoneRecords(cert, hostname, uint16(port))
		if genErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, genErr)
		}
		var out []byte
		for _, rec := range records {
			out = append(out, rec.ZoneLine...)
			out = append(out, '\n')
		}
		return writeOutput(out)
	}

	rec, err := pintlsa.ZoneRecord(
		cert, hostname, uint16(port),
		pintlsa.UsageEndEntity, uint8(selector), uint8(matchingType),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return writeOutput([]byte(rec.ZoneLine + "\n"))
}
