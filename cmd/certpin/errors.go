// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import "errors"

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitCheckFailed indicates a pin check or verification failed.
	ExitCheckFailed = 1

	// ExitConfigError indicates a configuration or input validation error.
	ExitConfigError = 2
)

// Sentinel errors for CLI operations.
var (
	// ErrInvalidInput is returned when required input parameters are missing or invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCheckFailed is returned when one or more hosts failed the pin check.
	ErrCheckFailed = errors.New("check failed")

	// ErrVerificationFailed is returned when TLSA pin verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrFileOperation is returned when a file read or write operation fails.
	ErrFileOperation = errors.New("file operation failed")

	// ErrServeFailed is returned when the report collector cannot start or stop.
	ErrServeFailed = errors.New("serve failed")
)
