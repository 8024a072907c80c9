// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates an unknown identifier or wrong credential.
	// Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionActive indicates the account already holds a live session.
	ErrSessionActive = errors.New("session already active")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., phone taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a malformed signup or token request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation indicates a rejected order payload; nothing was persisted.
	ErrValidation = errors.New("invalid order data")

	// ErrTransportUnavailable indicates the fanout layer cannot accept a broadcast.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrHandshakeRejected indicates a persistent connection failed authentication.
	ErrHandshakeRejected = errors.New("handshake rejected")
)
