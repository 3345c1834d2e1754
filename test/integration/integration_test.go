// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

//go:build integration

package integration

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// Global state populated by TestMain.
var (
	projectRoot string
	cliBinary   string
	testdataDir string

	// Test PKI file paths. chainPath bundles the server certificate with
	// its issuing CA, the chain the in-test TLS listeners serve.
	caCertPath     string
	serverCertPath string
	serverKeyPath  string
	otherCertPath  string
	chainPath      string

	// Hex SHA-256 of the server certificate's SubjectPublicKeyInfo, the
	// association data every TLSA answer from the test DNS server carries.
	serverSPKIHex string

	// In-process DNS server managed by TestMain.
	dnsServer *dns.Server
	dnsAddr   string
)

// TestMain orchestrates integration test infrastructure:
// 1. Locate project root and CLI binary
// 2. Generate an ephemeral test PKI
// 3. Start an in-process DNS server answering TLSA queries
// 4. Run tests
// 5. Tear down
func TestMain(m *testing.M) {
	var err error

	projectRoot, err = findProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	cliBinary = filepath.Join(projectRoot, "bin", "certpin")

	// Build CLI if not present.
	if _, err := os.Stat(cliBinary); os.IsNotExist(err) {
		fmt.Println("==> Building CLI binary...")
		cmd := exec.Command("go", "build", "-o", cliBinary, "./cmd/certpin")
		cmd.Dir = projectRoot
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: go build failed: %v\n", err)
			os.Exit(1)
		}
	}

	// Generate an ephemeral PKI for this run.
	testdataDir, err = os.MkdirTemp("", "certpin-integration-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: creating testdata dir: %v\n", err)
		os.Exit(1)
	}
	if err := generateTestPKI(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: generating test PKI: %v\n", err)
		os.RemoveAll(testdataDir) //nolint:errcheck
		os.Exit(1)
	}

	// Start the in-process DNS server.
	if err := startTLSADNS(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: starting DNS server: %v\n", err)
		os.RemoveAll(testdataDir) //nolint:errcheck
		os.Exit(1)
	}
	fmt.Println("==> DNS server ready on", dnsAddr)

	// Run tests.
	code := m.Run()

	// Tear down.
	dnsServer.Shutdown()          //nolint:errcheck
	os.RemoveAll(testdataDir)     //nolint:errcheck
	os.Exit(code)
}

// ---------------------------------------------------------------------------
// CLI: version
// ---------------------------------------------------------------------------

func TestVersion(t *testing.T) {
	stdout := runCLIMustSucceed(t, "version")
	if !strings.HasPrefix(stdout, "certpin version ") {
		t.Fatalf("unexpected version output: %q", stdout)
	}
	if strings.TrimSpace(strings.TrimPrefix(stdout, "certpin version ")) == "" {
		t.Fatalf("version output carries no version: %q", stdout)
	}
}

// ---------------------------------------------------------------------------
// CLI: pin
// ---------------------------------------------------------------------------

func TestPinJSON(t *testing.T) {
	stdout := runCLIMustSucceed(t, "pin", "--cert", serverCertPath, "--json")

	var entries []struct {
		File       string `json:"file"`
		Subject    string `json:"subject"`
		CertSHA256 string `json:"cert_sha256"`
		SPKISHA256 string `json:"spki_sha256"`
		PinSHA256  string `json:"pin_sha256"`
	}
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("pin --json output is not valid JSON: %v\n%s", err, stdout)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 pin entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.File != serverCertPath {
		t.Errorf("entry file: got %q, want %q", entry.File, serverCertPath)
	}
	if entry.SPKISHA256 != serverSPKIHex {
		t.Errorf("SPKI pin mismatch:\n  got:  %s\n  want: %s", entry.SPKISHA256, serverSPKIHex)
	}
	if len(entry.CertSHA256) != 64 {
		t.Errorf("cert fingerprint is %d chars, expected 64 hex chars", len(entry.CertSHA256))
	}
	if !strings.HasPrefix(entry.PinSHA256, `pin-sha256="`) {
		t.Errorf("pin directive has wrong shape: %q", entry.PinSHA256)
	}
}

func TestPinTable(t *testing.T) {
	stdout := runCLIMustSucceed(t, "pin", "--cert", serverCertPath)

	if !strings.Contains(stdout, "pin.test") {
		t.Errorf("pin table missing certificate subject:\n%s", stdout)
	}
	if !strings.Contains(stdout, serverSPKIHex) {
		t.Errorf("pin table missing SPKI fingerprint %s:\n%s", serverSPKIHex, stdout)
	}
}

func TestPinInvalidInputExitsConfigError(t *testing.T) {
	_, _, err := runCLI(t, "pin", "--encoding", "sha1", "--cert", serverCertPath)
	if err == nil {
		t.Fatal("pin with bad encoding should have failed")
	}
	if code := exitCodeOf(err); code != 2 {
		t.Fatalf("expected exit code 2 for invalid input, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// CLI: check (live TLS handshakes against a pinned policy)
// ---------------------------------------------------------------------------

func TestCheckAcceptsPinnedServer(t *testing.T) {
	addr := startPinnedTLSServer(t)

	stdout := runCLIMustSucceed(t, "--debug", "check", addr,
		"--mode", "public-key",
		"--pin-file", serverCertPath,
		"--allow-invalid",
	)

	if !strings.Contains(stdout, "ACCEPT") {
		t.Fatalf("expected ACCEPT in check output:\n%s", stdout)
	}
	if !strings.Contains(stdout, addr) {
		t.Errorf("expected target %s in check output:\n%s", addr, stdout)
	}
}

func TestCheckRejectsUnpinnedServer(t *testing.T) {
	addr := startPinnedTLSServer(t)

	stdout, _, err := runCLI(t, "check", addr,
		"--mode", "certificate",
		"--pin-file", otherCertPath,
		"--allow-invalid",
	)

	if err == nil {
		t.Fatal("check against an unpinned server should have failed")
	}
	if code := exitCodeOf(err); code != 1 {
		t.Fatalf("expected exit code 1 for a rejected host, got %d", code)
	}
	if !strings.Contains(stdout, "REJECT") {
		t.Fatalf("expected REJECT in check output:\n%s", stdout)
	}
}

func TestCheckMixedTargets(t *testing.T) {
	addr := startPinnedTLSServer(t)

	// Reserve a second address nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	deadAddr := ln.Addr().String()
	ln.Close()

	stdout, _, err := runCLI(t, "check", addr, deadAddr,
		"--mode", "public-key",
		"--pin-file", serverCertPath,
		"--allow-invalid",
	)

	if err == nil {
		t.Fatal("check with one dead target should have failed")
	}
	if !strings.Contains(stdout, "ACCEPT") || !strings.Contains(stdout, "REJECT") {
		t.Fatalf("expected both ACCEPT and REJECT in output:\n%s", stdout)
	}
}

func TestCheckPolicyFile(t *testing.T) {
	addr := startPinnedTLSServer(t)

	// Pin the root CA rather than the leaf. The served chain includes the
	// CA certificate, so the pin matches even when the leaf rotates.
	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	policy := fmt.Sprintf("mode: certificate\npins:\n  - %s\nallow_invalid_certificates: true\n", caCertPath)
	if err := os.WriteFile(policyPath, []byte(policy), 0644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	stdout := runCLIMustSucceed(t, "check", addr, "--policy", policyPath)
	if !strings.Contains(stdout, "ACCEPT") {
		t.Fatalf("expected ACCEPT via policy file:\n%s", stdout)
	}
}

func TestCheckBundleDir(t *testing.T) {
	addr := startPinnedTLSServer(t)

	bundleDir := filepath.Join(t.TempDir(), "pins")
	if err := os.Mkdir(bundleDir, 0755); err != nil {
		t.Fatalf("creating bundle dir: %v", err)
	}
	data, err := os.ReadFile(serverCertPath)
	if err != nil {
		t.Fatalf("reading server cert: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "server.pem"), data, 0644); err != nil {
		t.Fatalf("writing bundle cert: %v", err)
	}

	stdout := runCLIMustSucceed(t, "check", addr,
		"--mode", "public-key",
		"--bundle-dir", bundleDir,
		"--allow-invalid",
	)
	if !strings.Contains(stdout, "ACCEPT") {
		t.Fatalf("expected ACCEPT via bundle dir:\n%s", stdout)
	}
}

func TestCheckInvalidFlagsExitConfigError(t *testing.T) {
	_, _, err := runCLI(t, "check", "example.com", "--mode", "bogus")
	if err == nil {
		t.Fatal("check with unknown mode should have failed")
	}
	if code := exitCodeOf(err); code != 2 {
		t.Fatalf("expected exit code 2 for invalid input, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// CLI: tlsa (real DNS resolution against the in-process server)
// ---------------------------------------------------------------------------

func TestTLSAShow(t *testing.T) {
	stdout := runCLIMustSucceed(t, "tlsa", "show",
		"--hostname", "pin.test",
		"--port", "8443",
		"--dns-server", dnsAddr,
	)

	if !strings.Contains(stdout, "TLSA records for _8443._tcp.pin.test") {
		t.Fatalf("unexpected tlsa show header:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Usage=3 Selector=1 MatchingType=1") {
		t.Fatalf("expected a 3 1 1 record in tlsa show output:\n%s", stdout)
	}
	if !strings.Contains(stdout, serverSPKIHex) {
		t.Fatalf("tlsa show output missing association data %s:\n%s", serverSPKIHex, stdout)
	}
}

func TestTLSACheckCertFile(t *testing.T) {
	stdout := runCLIMustSucceed(t, "tlsa", "check",
		"--hostname", "pin.test",
		"--port", "8443",
		"--cert-file", serverCertPath,
		"--dns-server", dnsAddr,
	)

	if !strings.Contains(stdout, "PASS") {
		t.Fatalf("expected PASS in tlsa check output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "chain matches the published TLSA pins") {
		t.Fatalf("expected a match verdict:\n%s", stdout)
	}
}

func TestTLSACheckLiveChain(t *testing.T) {
	addr := startPinnedTLSServer(t)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("splitting %s: %v", addr, err)
	}

	stdout := runCLIMustSucceed(t, "--debug", "tlsa", "check",
		"--hostname", host,
		"--port", port,
		"--dns-server", dnsAddr,
	)

	if !strings.Contains(stdout, "chain matches the published TLSA pins") {
		t.Fatalf("expected live chain to match TLSA pins:\n%s", stdout)
	}
}

func TestTLSACheckMismatch(t *testing.T) {
	_, stderr, err := runCLI(t, "tlsa", "check",
		"--hostname", "pin.test",
		"--port", "8443",
		"--cert-file", otherCertPath,
		"--dns-server", dnsAddr,
	)

	if err == nil {
		t.Fatal("tlsa check with the wrong certificate should have failed")
	}
	if !strings.Contains(stderr, "verification failed") {
		t.Fatalf("expected 'verification failed' in error output:\n%s", stderr)
	}
}

func TestTLSAGenerate(t *testing.T) {
	stdout := runCLIMustSucceed(t, "tlsa", "generate",
		"--cert-file", serverCertPath,
		"--hostname", "pin.test",
		"--port", "8443",
	)

	expected := "_8443._tcp.pin.test. IN TLSA 3 1 1 " + serverSPKIHex
	if !strings.Contains(stdout, expected) {
		t.Fatalf("expected zone line %q in output:\n%s", expected, stdout)
	}
}

func TestTLSAGenerateAll(t *testing.T) {
	stdout := runCLIMustSucceed(t, "tlsa", "generate",
		"--cert-file", serverCertPath,
		"--hostname", "pin.test",
		"--port", "8443",
		"--all",
	)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 TLSA records from --all, got %d:\n%s", len(lines), stdout)
	}

	expectedCombinations := []string{
		"IN TLSA 3 0 1", // Full cert, SHA-256
		"IN TLSA 3 1 1", // SPKI, SHA-256
		"IN TLSA 3 0 2", // Full cert, SHA-512
		"IN TLSA 3 1 2", // SPKI, SHA-512
	}
	for _, combo := range expectedCombinations {
		if !strings.Contains(stdout, combo) {
			t.Errorf("--all output missing %s:\n%s", combo, stdout)
		}
	}
}

// ---------------------------------------------------------------------------
// CLI: report serve + report send (collector round trip)
// ---------------------------------------------------------------------------

func TestReportServeAndSend(t *testing.T) {
	baseURL, logPath := startReportCollector(t)

	runCLIMustSucceed(t, "report", "send",
		"--endpoint", baseURL+"/v1/reports",
		"--hostname", "sent.example.com",
		"--port", "443",
	)

	report := waitForReport(t, logPath, "sent.example.com")
	if report["reason"] != "pin-mismatch" {
		t.Errorf("expected default reason pin-mismatch, got %v", report["reason"])
	}
	if report["mode"] != "certificate" {
		t.Errorf("expected default mode certificate, got %v", report["mode"])
	}
}

func TestCheckSubmitsReportOnRejection(t *testing.T) {
	baseURL, logPath := startReportCollector(t)
	addr := startPinnedTLSServer(t)

	_, _, err := runCLI(t, "check", addr,
		"--mode", "certificate",
		"--pin-file", otherCertPath,
		"--allow-invalid",
		"--report-url", baseURL+"/v1/reports",
	)
	if err == nil {
		t.Fatal("check against an unpinned server should have failed")
	}

	report := waitForReport(t, logPath, "127.0.0.1")
	if report["reason"] != "pin-mismatch" {
		t.Errorf("expected reason pin-mismatch, got %v", report["reason"])
	}
	chain, ok := report["served-certificate-chain"].([]interface{})
	if !ok || len(chain) == 0 {
		t.Errorf("expected a served certificate chain in the report: %v", report)
	}
}

// ---------------------------------------------------------------------------
// CLI: --output flag (write to file instead of stdout)
// ---------------------------------------------------------------------------

func TestOutputToFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "records.zone")

	runCLIMustSucceed(t, "tlsa", "generate",
		"--cert-file", serverCertPath,
		"--hostname", "pin.test",
		"--output", outFile,
	)

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if !strings.Contains(string(data), "IN TLSA 3 1 1 "+serverSPKIHex) {
		t.Fatalf("output file missing zone record:\n%s", data)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// runCLI executes the CLI binary with the given arguments and returns stdout,
// stderr, and any error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Logf("CLI: %s %s", cliBinary, strings.Join(args, " "))

	cmd := exec.Command(cliBinary, args...)
	cmd.Dir = projectRoot

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	stderrStr := stderr.String()
	if stderrStr != "" {
		t.Logf("stderr:\n%s", stderrStr)
	}

	return stdout.String(), stderrStr, err
}

// runCLIMustSucceed executes the CLI and fails the test if it returns an error.
func runCLIMustSucceed(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("CLI command failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	return stdout
}

// exitCodeOf extracts the process exit code from a runCLI error.
func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// startPinnedTLSServer starts a TLS listener serving the test certificate
// chain and completing handshakes until the test ends. Returns the listen
// address.
func startPinnedTLSServer(t *testing.T) string {
	t.Helper()

	cert, err := tls.LoadX509KeyPair(chainPath, serverKeyPath)
	if err != nil {
		t.Fatalf("loading TLS keypair: %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	})
	if err != nil {
		t.Fatalf("starting TLS server: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if tc, ok := c.(*tls.Conn); ok {
					tc.Handshake() //nolint:errcheck
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

// startReportCollector runs a certpin report serve subprocess with a JSON
// Lines report log and waits for it to be ready. Returns the collector base
// URL and the report log path.
func startReportCollector(t *testing.T) (baseURL, logPath string) {
	t.Helper()

	port := findFreePort(t)
	listenAddr := fmt.Sprintf("127.0.0.1:%d", port)
	logPath = filepath.Join(t.TempDir(), "reports.jsonl")

	cmd := exec.Command(cliBinary, "--debug", "report", "serve",
		"--listen", listenAddr,
		"--report-log", logPath,
	)
	cmd.Dir = projectRoot

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		t.Fatalf("creating stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("starting report collector: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck
		cmd.Wait()                          //nolint:errcheck
	})

	// Read stderr until the collector reports it is listening.
	scanner := bufio.NewScanner(stderrPipe)
	ready := false
	deadline := time.After(10 * time.Second)
	for !ready {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for report collector to be ready")
		default:
		}
		if !scanner.Scan() {
			t.Fatalf("report collector stderr ended unexpectedly: %v", scanner.Err())
		}
		line := scanner.Text()
		t.Logf("serve stderr: %s", line)
		if strings.Contains(line, "msg=listening") {
			ready = true
		}
	}

	// Drain the rest of stderr so the subprocess never blocks on writes.
	go func() {
		for scanner.Scan() {
		}
	}()

	if err := waitForPort(listenAddr, 5*time.Second); err != nil {
		t.Fatalf("report collector port not ready: %v", err)
	}

	return "http://" + listenAddr, logPath
}

// waitForReport polls the collector's JSON Lines log until a report for the
// hostname appears or the deadline passes.
func waitForReport(t *testing.T, logPath, hostname string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(logPath)
		if err == nil {
			for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
				if line == "" {
					continue
				}
				var report map[string]interface{}
				if err := json.Unmarshal([]byte(line), &report); err != nil {
					continue
				}
				if report["hostname"] == hostname {
					return report
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("no report for %s in %s", hostname, logPath)
	return nil
}

// startTLSADNS starts an in-process DNS server on a random localhost port
// that answers every TLSA query with a 3 1 1 record carrying the server
// certificate's SPKI SHA-256.
func startTLSADNS() error {
	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Authoritative = true
		if len(r.Question) == 1 && r.Question[0].Qtype == dns.TypeTLSA {
			m.Answer = append(m.Answer, &dns.TLSA{
				Hdr: dns.RR_Header{
					Name:   r.Question[0].Name,
					Rrtype: dns.TypeTLSA,
					Class:  dns.ClassINET,
					Ttl:    300,
				},
				Usage:        3,
				Selector:     1,
				MatchingType: 1,
				Certificate:  serverSPKIHex,
			})
		}
		w.WriteMsg(m) //nolint:errcheck
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	dnsServer = &dns.Server{PacketConn: pc, Handler: handler}
	started := make(chan struct{})
	dnsServer.NotifyStartedFunc = func() { close(started) }
	go func() {
		if err := dnsServer.ActivateAndServe(); err != nil {
			return
		}
	}()
	<-started

	dnsAddr = pc.LocalAddr().String()
	return nil
}

// generateTestPKI writes a fresh CA, a server certificate with a loopback IP
// SAN signed by that CA, and an unrelated self-signed certificate into the
// testdata directory.
func generateTestPKI() error {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Certpin Test Root CA",
			Organization: []string{"Certpin Test"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return err
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		return err
	}

	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serverTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName: "pin.test",
		},
		DNSNames:    []string{"pin.test"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	serverDER, err := x509.CreateCertificate(rand.Reader, serverTemplate, caCert, &serverKey.PublicKey, caKey)
	if err != nil {
		return err
	}
	serverCert, err := x509.ParseCertificate(serverDER)
	if err != nil {
		return err
	}

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	otherTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject: pkix.Name{
			CommonName: "other.test",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	otherDER, err := x509.CreateCertificate(rand.Reader, otherTemplate, otherTemplate, &otherKey.PublicKey, otherKey)
	if err != nil {
		return err
	}

	caCertPath = filepath.Join(testdataDir, "ca.pem")
	serverCertPath = filepath.Join(testdataDir, "server.pem")
	serverKeyPath = filepath.Join(testdataDir, "server.key")
	otherCertPath = filepath.Join(testdataDir, "other.pem")
	chainPath = filepath.Join(testdataDir, "chain.pem")

	if err := writePEM(caCertPath, "CERTIFICATE", caDER, 0644); err != nil {
		return err
	}
	if err := writePEM(serverCertPath, "CERTIFICATE", serverDER, 0644); err != nil {
		return err
	}
	if err := writePEM(otherCertPath, "CERTIFICATE", otherDER, 0644); err != nil {
		return err
	}

	chainPEM := append(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: serverDER}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})...,
	)
	if err := os.WriteFile(chainPath, chainPEM, 0644); err != nil {
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return err
	}
	if err := writePEM(serverKeyPath, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return err
	}

	digest := sha256.Sum256(serverCert.RawSubjectPublicKeyInfo)
	serverSPKIHex = hex.EncodeToString(digest[:])

	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return os.WriteFile(path, data, perm)
}

// waitForPort polls a TCP address until a connection is accepted or timeout.
func waitForPort(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("port %s not ready after %v", addr, timeout)
}

// findFreePort binds to :0, closes the listener, and returns the assigned port.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// findProjectRoot walks up from the current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find go.mod in any parent directory")
		}
		dir = parent
	}
}
