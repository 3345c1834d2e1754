// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pintlsa

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultQueryTimeout is the default DNS query timeout.
	DefaultQueryTimeout = 5 * time.Second

	// defaultDNSPort is the standard DNS port.
	defaultDNSPort = "53"

	// defaultDoTPort is the standard DNS-over-TLS port.
	defaultDoTPort = "853"

	// maxHostnameLength is the RFC 1035 limit on a DNS name.
	maxHostnameLength = 253
)

// ResolverConfig configures the DNS resolver used for pin lookups.
type ResolverConfig struct {

	// Server is the DNS resolver address (e.g., "9.9.9.9:53"). When empty,
	// the system resolver from /etc/resolv.conf is used.
	Server string

	// UseTLS enables DNS-over-TLS (DoT) on port 853.
	UseTLS bool

	// TLSServerName is the SNI value for DNS-over-TLS connections. Only
	// used when UseTLS is true.
	TLSServerName string

	// RequireAD requires the Authenticated Data (AD) flag in responses,
	// indicating the resolver validated DNSSEC signatures. Pins pulled
	// from an unvalidated answer are attacker-controllable, so leave this
	// on unless the transport to the resolver is otherwise trusted.
	RequireAD bool

	// Timeout is the maximum duration for a DNS query.
	// Defaults to DefaultQueryTimeout.
	Timeout time.Duration

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver fetches certificate pins published as TLSA records, with
// optional DNSSEC enforcement and DNS-over-TLS transport.
type Resolver struct {
	config *ResolverConfig
	client *dns.Client
	server string
	logger *slog.Logger
}

// NewResolver creates a pin resolver with the given configuration and
// applies defaults for unset fields.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, ErrResolverConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	client := &dns.Client{
		Timeout: timeout,
	}

	server := cfg.Server
	if cfg.UseTLS {
		client.Net = "tcp-tls"
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if cfg.TLSServerName != "" {
			tlsCfg.ServerName = cfg.TLSServerName
		}
		client.TLSConfig = tlsCfg
		if server != "" && !strings.Contains(server, ":") {
			server += ":" + defaultDoTPort
		}
	} else {
		client.Net = "udp"
		if server != "" && !strings.Contains(server, ":") {
			server += ":" + defaultDNSPort
		}
	}

	if server == "" {
		systemCfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrResolverConfig, err.Error())
		}
		if len(systemCfg.Servers) == 0 {
			return nil, fmt.Errorf("%w: no nameservers in /etc/resolv.conf", ErrResolverConfig)
		}
		port := systemCfg.Port
		if port == "" {
			port = defaultDNSPort
		}
		server = systemCfg.Servers[0] + ":" + port
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		config: cfg,
		client: client,
		server: server,
		logger: logger.With("component", "tlsa_resolver"),
	}, nil
}

// LookupPins queries the TLSA records for host and port and returns them as
// pins. The query name is "_<port>._tcp.<host>." per RFC 6698 Section 3.
func (r *Resolver) LookupPins(ctx context.Context, host string, port uint16) ([]Pin, error) {
	if host == "" || strings.ContainsRune(host, 0) || len(host) > maxHostnameLength {
		return nil, ErrInvalidHostname
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}

	qname := tlsaName(host, port)
	r.logger.Debug("querying TLSA records",
		"qname", qname,
		"server", r.server,
		"dot", r.config.UseTLS)

	msg := new(dns.Msg)
	msg.SetQuestion(qname, dns.TypeTLSA)
	msg.SetEdns0(4096, true) // Enable DNSSEC OK (DO) bit.
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, err.Error())
	}
	if resp == nil {
		return nil, ErrLookupFailed
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %s", ErrLookupFailed, dns.RcodeToString[resp.Rcode])
	}
	if r.config.RequireAD && !resp.AuthenticatedData {
		return nil, ErrDNSSECRequired
	}

	pins := make([]Pin, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		tlsa, ok := rr.(*dns.TLSA)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(tlsa.Certificate)
		if err != nil {
			continue
		}
		pins = append(pins, Pin{
			Usage:        tlsa.Usage,
			Selector:     tlsa.Selector,
			MatchingType: tlsa.MatchingType,
			Data:         data,
		})
	}

	if len(pins) == 0 {
		return nil, ErrNoPins
	}

	r.logger.Debug("TLSA records resolved", "qname", qname, "pins", len(pins))
	return pins, nil
}

// tlsaName constructs the absolute DNS owner name for a TLSA query.
func tlsaName(host string, port uint16) string {
	if !strings.HasSuffix(host, ".") {
		host += "."
	}
	return fmt.Sprintf("_%d._tcp.%s", port, host)
}
