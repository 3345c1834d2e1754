// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-certpin/pkg/certpin"
	"github.com/jeremyhahn/go-certpin/pkg/pinreport"
)

func TestReportCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range reportCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["send"])
}

func TestReportServeCmd_HasExpectedFlags(t *testing.T) {
	for _, name := range []string{
		"listen", "max-body-bytes", "rate-limit", "rate-burst", "report-log",
	} {
		assert.NotNil(t, reportServeCmd.Flags().Lookup(name), name)
	}
}

func TestReportSendCmd_HasExpectedFlags(t *testing.T) {
	for _, name := range []string{
		"endpoint", "hostname", "port", "mode", "reason",
	} {
		assert.NotNil(t, reportSendCmd.Flags().Lookup(name), name)
	}
}

func TestJSONLinesSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")
	sink, err := newJSONLinesSink(path)
	require.NoError(t, err)

	sink.accept(pinreport.NewReport(certpin.Failure{
		Host:   "a.example.com",
		Mode:   certpin.ModeCertificate,
		Reason: certpin.ReasonPinMismatch,
	}))
	sink.accept(pinreport.NewReport(certpin.Failure{
		Host:   "b.example.com",
		Mode:   certpin.ModePublicKey,
		Reason: certpin.ReasonNoPins,
	}))
	require.NoError(t, sink.close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var report pinreport.Report
		require.NoError(t, json.Unmarshal([]byte(line), &report))
		assert.NotEmpty(t, report.Hostname)
	}
}

func TestJSONLinesSink_BadPath(t *testing.T) {
	_, err := newJSONLinesSink("/nonexistent/dir/reports.jsonl")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrFileOperation)
}

func TestRunReportSend_MissingEndpoint(t *testing.T) {
	cmd := reportSendCmd
	cmd.Flags().Set("endpoint", "")
	cmd.Flags().Set("hostname", "api.example.com")

	err := runReportSend(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunReportSend_MissingHostname(t *testing.T) {
	cmd := reportSendCmd
	cmd.Flags().Set("endpoint", "http://127.0.0.1:8446/v1/reports")
	cmd.Flags().Set("hostname", "")

	err := runReportSend(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunReportSend_BadMode(t *testing.T) {
	cmd := reportSendCmd
	cmd.Flags().Set("endpoint", "http://127.0.0.1:8446/v1/reports")
	cmd.Flags().Set("hostname", "api.example.com")
	cmd.Flags().Set("mode", "spki")
	defer cmd.Flags().Set("mode", "certificate")

	err := runReportSend(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunReportSend_Delivers(t *testing.T) {
	received := make(chan *pinreport.Report, 1)
	srv, err := pinreport.NewServer(&pinreport.ServerConfig{
		RateLimit: 1000,
		RateBurst: 1000,
		Sink: func(report *pinreport.Report) {
			select {
			case received <- report:
			default:
			}
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) }) //nolint:errcheck

	collector := httptest.NewServer(srv.Handler())
	defer collector.Close()

	cmd := reportSendCmd
	cmd.Flags().Set("endpoint", collector.URL+pinreport.ReportPath)
	cmd.Flags().Set("hostname", "api.example.com")
	cmd.Flags().Set("port", "443")

	require.NoError(t, runReportSend(cmd, nil))

	select {
	case report := <-received:
		assert.Equal(t, "api.example.com", report.Hostname)
		assert.Equal(t, 443, report.Port)
		assert.Equal(t, string(certpin.ModeCertificate), report.Mode)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not receive the report")
	}
}

func TestRunReportSend_CollectorError(t *testing.T) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer collector.Close()

	cmd := reportSendCmd
	cmd.Flags().Set("endpoint", collector.URL)
	cmd.Flags().Set("hostname", "api.example.com")

	err := runReportSend(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckFailed)
}

func TestRunReportServe_BadReportLog(t *testing.T) {
	cmd := reportServeCmd
	cmd.Flags().Set("listen", "127.0.0.1:0")
	cmd.Flags().Set("report-log", "/nonexistent/dir/reports.jsonl")
	defer cmd.Flags().Set("report-log", "")

	err := runReportServe(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrFileOperation)
}

func TestRunReportServe_BusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cmd := reportServeCmd
	cmd.Flags().Set("listen", ln.Addr().String())
	cmd.Flags().Set("report-log", "")

	err = runReportServe(cmd, nil)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrServeFailed)
}

func TestRunReportServe_StopsOnSignal(t *testing.T) {
	// Keep a handler registered for the whole test so the SIGTERM below can
	// never hit the default action, even if it fires before runReportServe
	// installs its own.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	reportLog := filepath.Join(t.TempDir(), "reports.jsonl")

	cmd := reportServeCmd
	cmd.Flags().Set("listen", "127.0.0.1:0")
	cmd.Flags().Set("report-log", reportLog)
	defer cmd.Flags().Set("report-log", "")

	timer := time.AfterFunc(500*time.Millisecond, func() {
		syscall.Kill(os.Getpid(), syscall.SIGTERM) //nolint:errcheck
	})
	defer timer.Stop()

	err := runReportServe(cmd, nil)
	assert.NoError(t, err)

	// The sink file is created when the collector starts.
	_, err = os.Stat(reportLog)
	assert.NoError(t, err)
}
