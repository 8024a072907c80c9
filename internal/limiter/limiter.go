// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts per (identifier, client address) and
// places temporary lockouts after repeated failures.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, identifier, addr string) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, identifier, addr string) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, identifier, addr string) (bool, time.Duration, error)
}

// Nop never limits. Used when lockout is disabled.
type Nop struct{}

func (Nop) Allow(context.Context, string, string) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, string) error                      { return nil }
func (Nop) Failure(context.Context, string, string) (bool, time.Duration, error) {
	return false, 0, nil
}
