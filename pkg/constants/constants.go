// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for backend requests
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single signaling frame write
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Call lifecycle constants
const (
	// InitiateGuardWindow is how long a successful initiation blocks another one
	InitiateGuardWindow = 2 * time.Second

	// RTCTokenExpiry is the lifetime of a channel-scoped media credential
	RTCTokenExpiry = 2 * time.Hour

	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// DevTokenExpiry is the lifetime of tokens minted for local development
	DevTokenExpiry = 24 * time.Hour
)

// Chat constants
const (
	// ChatPollInterval is the fixed interval between incremental message polls
	ChatPollInterval = 3 * time.Second

	// SeenMessageCapacity bounds the client-side message-id dedup set
	SeenMessageCapacity = 10000

	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100

	// MinPageSize is the minimum number of items per page
	MinPageSize = 1
)

// Wallet constants (dev backend)
const (
	// DefaultStartBalance is credited to every new wallet
	DefaultStartBalance = 100

	// DefaultCallCost is charged when a session starts
	DefaultCallCost = 10
)
