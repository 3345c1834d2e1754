// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certpin/pkg/certpin"
	"github.com/jeremyhahn/go-certpin/pkg/pinreport"
)

const (
	// defaultReportSendTimeout bounds a test report submission.
	defaultReportSendTimeout = 10 * time.Second

	// serveShutdownTimeout bounds the collector's graceful shutdown.
	serveShutdownTimeout = 10 * time.Second
)

// reportCmd is the parent command for pin failure report operations.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Pin failure report collection",
	Long: `Run a pin validation failure report collector, or send a test report
to one.

Reports follow the RFC 7469 section 3 style: JSON documents carrying the
hostname, the served certificate chain, and the expected pins.`,
}

// reportServeCmd runs the report collector.
var reportServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report collector",
	Long: `Run an HTTP collector for pin validation failure reports. Incoming
reports are rate limited per source, validated against the report schema,
logged, and optionally appended to a JSON Lines file.`,
	RunE: runReportServe,
}

// reportSendCmd submits a synthetic report to a collector.
var reportSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test report to a collector",
	Long: `Build a synthetic pin validation failure report and submit it to a
collector. Useful for verifying a collector deployment end to end.`,
	RunE: runReportSend,
}

func init() {
	reportCmd.AddCommand(reportServeCmd)
	reportCmd.AddCommand(reportSendCmd)

	// Flags for report serve.
	reportServeCmd.Flags().String("listen", pinreport.DefaultListenAddr, "TCP listen address")
	reportServeCmd.Flags().Int64("max-body-bytes", pinreport.DefaultMaxBodyBytes, "maximum accepted report body size")
	reportServeCmd.Flags().Float64("rate-limit", pinreport.DefaultRateLimit, "per-source sustained reports per second")
	reportServeCmd.Flags().Int("rate-burst", pinreport.DefaultRateBurst, "per-source report burst")
	reportServeCmd.Flags().String("report-log", "", "append accepted reports to this JSON Lines file")

	// Flags for report send.
	reportSendCmd.Flags().String("endpoint", "", "collector URL (required)")
	reportSendCmd.Flags().String("hostname", "", "hostname the synthetic failure is about (required)")
	reportSendCmd.Flags().Int("port", 0, "port of the synthetic failure")
	reportSendCmd.Flags().String("mode", "certificate", "pinning mode to report (none|public-key|certificate)")
	reportSendCmd.Flags().String("reason", "pin-mismatch", "failure reason to report")
}

// jsonLinesSink appends accepted reports to a file, one JSON document per
// line.
type jsonLinesSink struct {
	mu   sync.Mutex
	file *os.File
}

func newJSONLinesSink(path string) (*jsonLinesSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	return &jsonLinesSink{file: file}, nil
}

func (s *jsonLinesSink) accept(report *pinreport.Report) {
	line, err := json.Marshal(report)
	if err != nil {
		slog.Warn("report not logged", "error", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		slog.Warn("report not logged", "error", err)
	}
}

func (s *jsonLinesSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// runReportServe starts the collector and waits for a termination signal.
func runReportServe(cmd *cobra.Command, args []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")
	maxBodyBytes, _ := cmd.Flags().GetInt64("max-body-bytes")
	rateLimit, _ := cmd.Flags().GetFloat64("rate-limit")
	rateBurst, _ := cmd.Flags().GetInt("rate-burst")
	reportLog, _ := cmd.Flags().GetString("report-log")

	cfg := &pinreport.ServerConfig{
		ListenAddr:   listenAddr,
		MaxBodyBytes: maxBodyBytes,
		RateLimit:    rateLimit,
		RateBurst:    rateBurst,
		Logger:       slog.Default(),
	}

	if reportLog != "" {
		sink, err := newJSONLinesSink(reportLog)
		if err != nil {
			return err
		}
		defer sink.close() //nolint:errcheck
		cfg.Sink = sink.accept
		slog.Info("logging accepted reports", "path", reportLog)
	}

	server, err := pinreport.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServeFailed, err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrServeFailed, err)
	}

	slog.Info("listening", "addr", server.Addr())

	// Wait for SIGINT or SIGTERM.
	sigCtx, sigStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigStop()

	<-sigCtx.Done()
	slog.Info("shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer stopCancel()

	if err := server.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrServeFailed, err)
	}

	slog.Info("server stopped")
	return nil
}

// runReportSend builds a synthetic report from flags and submits it.
func runReportSend(cmd *cobra.Command, args []string) error {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	hostname, _ := cmd.Flags().GetString("hostname")
	port, _ := cmd.Flags().GetInt("port")
	modeStr, _ := cmd.Flags().GetString("mode")
	reason, _ := cmd.Flags().GetString("reason")

	if endpoint == "" {
		return fmt.Errorf("%w: --endpoint is required", ErrInvalidInput)
	}
	if hostname == "" {
		return fmt.Errorf("%w: --hostname is required", ErrInvalidInput)
	}
	mode, err := certpin.ParseMode(modeStr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	client, err := pinreport.NewClient(&pinreport.ClientConfig{
		Endpoint: endpoint,
		Logger:   slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	report := pinreport.NewReport(certpin.Failure{
		Host:   hostname,
		Mode:   mode,
		Reason: certpin.Reason(reason),
	})
	report.Port = port

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	ctx, cancel := context.WithTimeout(sigCtx, defaultReportSendTimeout)
	defer cancel()

	if err := client.Submit(ctx, report); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	slog.Info("report accepted", "endpoint", endpoint, "report_id", report.ID)
	return nil
}
