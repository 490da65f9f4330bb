package bringup

import "errors"

// Terminal failures. Surfaced once through Err and Wait.
var (
	ErrTerminalAssociation = errors.New("bringup: wireless association retries exhausted")
	ErrTerminalBroker      = errors.New("bringup: broker connection retries exhausted")
)

// Transient failures are recovered by retry and only ever logged.
var (
	ErrTransientAssociation = errors.New("bringup: wireless association lost")
	ErrTransientBroker      = errors.New("bringup: broker session failed")
)

// ErrClockSyncTimeout marks a bring-up that proceeded without a confirmed clock.
var ErrClockSyncTimeout = errors.New("bringup: clock sync timed out, proceeding with untrusted time")

// Bridge and lifecycle errors.
var (
	ErrMalformedEvent      = errors.New("bringup: malformed notification")
	ErrUnknownNotification = errors.New("bringup: unknown notification")
	ErrNoTarget            = errors.New("bringup: no orchestrator registered")
	ErrAlreadyStarted      = errors.New("bringup: already started")
	ErrStopped             = errors.New("bringup: orchestrator stopped")
)
