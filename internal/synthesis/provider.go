package synthesis

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 30
	DefaultDelay       = time.Second
)

// Provider is implemented by every synthesis backend adapter.
type Provider interface {
	// Name returns the provider name used in logs and errors.
	Name() string

	// Validate checks that credentials and endpoint are configured. It must not do any I/O.
	Validate() error

	// Submit sends exactly one creation request and returns the job handle.
	Submit(ctx context.Context, req *Request) (Handle, error)

	// Poll queries the job status once.
	Poll(ctx context.Context, handle Handle) (*Status, error)
}

// Policy bounds the polling loop.
type Policy struct {
	MaxAttempts int           `mapstructure:"max-attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// DefaultPolicy returns 30 attempts, one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// WithDefaults replaces non-positive values with the defaults.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	return p
}

// Timeout is the cooperative time budget implied by the policy.
func (p Policy) Timeout() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Delay
}
