package limiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/spigell/avatar-synth/internal/synthesis"
)

var _ synthesis.Provider = &limitedProvider{}

type limitedProvider struct {
	limiter  *rate.Limiter
	provider synthesis.Provider
}

// NewProvider throttles job submissions of p. Status queries are not limited:
// they are already paced by the polling policy.
func NewProvider(l *rate.Limiter, p synthesis.Provider) synthesis.Provider {
	if l == nil {
		return p
	}

	return &limitedProvider{
		limiter:  l,
		provider: p,
	}
}

// New returns a limiter allowing perMinute submissions with the given burst.
// A non-positive rate disables limiting.
func New(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}

	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

func (p *limitedProvider) Name() string {
	return p.provider.Name()
}

func (p *limitedProvider) Validate() error {
	return p.provider.Validate()
}

func (p *limitedProvider) Submit(ctx context.Context, req *synthesis.Request) (synthesis.Handle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// the limiter refuses upfront when the next token lies past the deadline
		return "", &synthesis.Error{
			Kind:   synthesis.KindCanceled,
			Detail: "rate limit delay exceeds the context deadline",
			Err:    err,
		}
	}

	return p.provider.Submit(ctx, req)
}

func (p *limitedProvider) Poll(ctx context.Context, handle synthesis.Handle) (*synthesis.Status, error) {
	return p.provider.Poll(ctx, handle)
}
