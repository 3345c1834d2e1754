// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/go-certpin/pkg/certenc"
	"github.com/jeremyhahn/go-certpin/pkg/certpin"
	"github.com/jeremyhahn/go-certpin/pkg/pinbundle"
	"github.com/jeremyhahn/go-certpin/pkg/pinreport"
)

const (
	// defaultCheckPort is appended to check targets given without a port.
	defaultCheckPort = "443"

	// defaultCheckTimeout bounds the dial and handshake per host.
	defaultCheckTimeout = 10 * time.Second

	// defaultCheckConcurrency is the number of hosts checked in parallel.
	defaultCheckConcurrency = 4
)

// checkResult is the outcome of evaluating one target.
type checkResult struct {
	target  string
	ok      bool
	subject string
	spki    string
	detail  string
}

// failureRecorder retains the last policy failure per host so the check
// output can show why a host was rejected.
type failureRecorder struct {
	mu       sync.Mutex
	failures map[string]certpin.Failure
}

func newFailureRecorder() *failureRecorder {
	return &failureRecorder{failures: make(map[string]certpin.Failure)}
}

func (r *failureRecorder) PinFailure(failure certpin.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[failure.Host] = failure
}

func (r *failureRecorder) get(host string) (certpin.Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	failure, ok := r.failures[host]
	return failure, ok
}

// multiReporter fans a failure out to every attached reporter.
type multiReporter []certpin.Reporter

func (m multiReporter) PinFailure(failure certpin.Failure) {
	for _, r := range m {
		r.PinFailure(failure)
	}
}

var checkCmd = &cobra.Command{
	Use:   "check HOST[:PORT]...",
	Short: "Check live servers against a pinning policy",
	Long: `Dial each target, complete a TLS handshake, and evaluate the served
certificate chain against the pinning policy.

The policy is assembled from flags: --mode selects the pinning strategy
and --pin-file/--bundle-dir provide the pinned set. Alternatively
--policy loads the whole policy from a YAML file. Targets without a port
default to 443.

The command exits non-zero if any target is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("mode", "", "pinning mode (none|public-key|certificate)")
	checkCmd.Flags().StringArray("pin-file", nil, "pinned certificate file (repeatable)")
	checkCmd.Flags().String("bundle-dir", "", "directory of pinned certificate files")
	checkCmd.Flags().String("policy", "", "YAML policy file (exclusive with the policy-shaping flags)")
	checkCmd.Flags().Bool("allow-invalid", false, "skip chain validation (pinning still applies)")
	checkCmd.Flags().Bool("no-verify-name", false, "skip hostname verification")
	checkCmd.Flags().Bool("insecure-log-chain", false, "include the served chain PEM for rejected hosts in the output")
	checkCmd.Flags().Bool("ocsp-staple", false, "require any stapled OCSP response to be valid")
	checkCmd.Flags().String("report-url", "", "submit pin failures to this report collector")
	checkCmd.Flags().Duration("timeout", defaultCheckTimeout, "dial and handshake timeout per host")
	checkCmd.Flags().Int("concurrency", defaultCheckConcurrency, "number of hosts checked in parallel")
}

func runCheck(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	logChain, _ := cmd.Flags().GetBool("insecure-log-chain")
	ocspStaple, _ := cmd.Flags().GetBool("ocsp-staple")
	reportURL, _ := cmd.Flags().GetString("report-url")

	if timeout <= 0 {
		return fmt.Errorf("%w: --timeout must be positive", ErrInvalidInput)
	}
	if concurrency <= 0 {
		return fmt.Errorf("%w: --concurrency must be positive", ErrInvalidInput)
	}

	recorder := newFailureRecorder()
	policy, err := buildCheckPolicy(cmd, recorder, reportURL)
	if err != nil {
		return err
	}

	dialer, err := certpin.NewDialer(&certpin.DialerConfig{
		Policy:           policy,
		HandshakeTimeout: timeout,
		CheckOCSPStaple:  ocspStaple,
		Logger:           slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	slog.Info("checking hosts", "targets", len(args), "mode", policy.Mode())

	results := make([]checkResult, len(args))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, arg := range args {
		g.Go(func() error {
			results[i] = checkHost(sigCtx, dialer, arg, timeout)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	output := renderCheckTable(results)
	if logChain {
		output += renderRejectedChains(results, recorder)
	}
	if err := writeOutput([]byte(output)); err != nil {
		return err
	}

	rejected := 0
	for _, res := range results {
		if !res.ok {
			rejected++
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%w: %d of %d hosts rejected", ErrCheckFailed, rejected, len(args))
	}
	return nil
}

// buildCheckPolicy assembles the pinning policy from the command flags.
func buildCheckPolicy(cmd *cobra.Command, recorder *failureRecorder, reportURL string) (*certpin.Policy, error) {
	modeStr, _ := cmd.Flags().GetString("mode")
	pinFiles, _ := cmd.Flags().GetStringArray("pin-file")
	bundleDir, _ := cmd.Flags().GetString("bundle-dir")
	policyFile, _ := cmd.Flags().GetString("policy")
	allowInvalid, _ := cmd.Flags().GetBool("allow-invalid")
	noVerifyName, _ := cmd.Flags().GetBool("no-verify-name")

	reporter := multiReporter{recorder}
	if reportURL != "" {
		client, err := pinreport.NewClient(&pinreport.ClientConfig{
			Endpoint: reportURL,
			Logger:   slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		reporter = append(reporter, client)
	}

	if policyFile != "" {
		if modeStr != "" || len(pinFiles) > 0 || bundleDir != "" || allowInvalid || noVerifyName {
			return nil, fmt.Errorf("%w: --policy is exclusive with --mode, --pin-file, --bundle-dir, --allow-invalid, and --no-verify-name", ErrInvalidInput)
		}
		cfg, err := pinbundle.LoadPolicyConfig(policyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		cfg.Reporter = reporter
		cfg.Logger = slog.Default()
		policy, err := certpin.NewPolicy(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return policy, nil
	}

	mode, err := certpin.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	certs, err := loadCheckPins(pinFiles, bundleDir)
	if err != nil {
		return nil, err
	}
	if mode == certpin.ModeNone && len(certs) > 0 {
		return nil, fmt.Errorf("%w: pins provided but --mode is none", ErrInvalidInput)
	}

	policy, err := certpin.NewPolicy(&certpin.PolicyConfig{
		Mode:                     mode,
		Pins:                     certs,
		AllowInvalidCertificates: allowInvalid,
		SkipHostVerification:     noVerifyName,
		Reporter:                 reporter,
		Logger:                   slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return policy, nil
}

// loadCheckPins reads the pinned certificates named by the --pin-file and
// --bundle-dir flags.
func loadCheckPins(pinFiles []string, bundleDir string) ([]*x509.Certificate, error) {
	var pins []*x509.Certificate

	for _, file := range pinFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		certs, err := certenc.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, file, err)
		}
		pins = append(pins, certs...)
	}

	if bundleDir != "" {
		certs, err := pinbundle.LoadDir(bundleDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		pins = append(pins, certs...)
	}

	return pins, nil
}

// checkHost dials one target and reports the evaluation outcome.
func checkHost(ctx context.Context, dialer *certpin.Dialer, target string, timeout time.Duration) checkResult {
	addr := target
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultCheckPort)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		slog.Debug("check rejected", "target", addr, "error", err)
		return checkResult{target: addr, detail: err.Error()}
	}
	defer conn.Close()

	result := checkResult{target: addr, ok: true, detail: "accepted"}
	if peers := conn.ConnectionState().PeerCertificates; len(peers) > 0 {
		result.subject = peers[0].Subject.String()
		result.spki = certenc.SPKIFingerprint(peers[0])
	}
	slog.Debug("check accepted", "target", addr, "subject", result.subject)
	return result
}

// renderCheckTable renders per-host outcomes as a markdown table.
func renderCheckTable(results []checkResult) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"Host", "Result", "Subject", "SPKI SHA-256", "Detail"})

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		verdict := "REJECT"
		if res.ok {
			verdict = "ACCEPT"
		}
		rows = append(rows, []string{res.target, verdict, res.subject, res.spki, res.detail})
	}
	table.Bulk(rows)
	table.Render()
	return buf.String()
}

// renderRejectedChains appends the served chain PEM for each rejected host
// that produced a recorded failure.
func renderRejectedChains(results []checkResult, recorder *failureRecorder) string {
	var buf strings.Builder
	for _, res := range results {
		if res.ok {
			continue
		}
		host, _, err := net.SplitHostPort(res.target)
		if err != nil {
			host = res.target
		}
		failure, found := recorder.get(host)
		if !found || len(failure.Chain) == 0 {
			continue
		}
		buf.WriteString("\nServed chain for " + res.target + " (" + string(failure.Reason) + "):\n")
		buf.Write(certenc.EncodePEMBundle(failure.Chain))
	}
	return buf.String()
}
