package synthesis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
	"github.com/spigell/avatar-synth/internal/utils"
)

// Poller drives a job handle to a terminal state.
type Poller struct {
	provider Provider
	policy   Policy
	logger   *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
}

func NewPoller(provider Provider, policy Policy, log *zap.Logger) *Poller {
	return &Poller{
		provider: provider,
		policy:   policy.WithDefaults(),
		logger:   logger.WithFields(log),
		wait:     utils.WaitFor,
	}
}

// Policy returns the effective policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// Poll queries the provider until the job is done, failed, or the attempt budget is spent.
// It returns the artifact URL and the number of queries issued.
//
// The first query is sent right away; the delay is only observed after a pending status.
// A transport failure ends the run on the attempt it occurred on.
func (p *Poller) Poll(ctx context.Context, handle Handle) (string, int, error) {
	name := p.provider.Name()
	maxAttempts := p.policy.MaxAttempts
	log := logger.WithCommonFields(p.logger, name, handle.String())

	fail := func(e *Error, attempt int) (string, int, error) {
		e.Op = OpPoll
		e.Provider = name
		e.Handle = handle
		e.Attempt = attempt
		e.MaxAttempts = maxAttempts
		return "", attempt, e
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			// nothing was queried on this attempt
			return fail(&Error{Kind: KindCanceled, Err: err}, attempt-1)
		}

		status, err := p.provider.Poll(ctx, handle)
		if err != nil {
			return fail(classify(ctx, err, OpPoll, name), attempt)
		}
		if status == nil {
			return fail(Protocol("provider returned no status"), attempt)
		}

		log.Debug("poll attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("status", status.Raw),
		)

		switch status.State {
		case StateDone:
			if status.ArtifactURL == "" {
				return fail(Protocol("job is done but the response has no result url"), attempt)
			}
			return status.ArtifactURL, attempt, nil
		case StateFailed:
			return fail(&Error{Kind: KindProviderFailed, Detail: status.Detail}, attempt)
		}

		if attempt >= maxAttempts {
			return fail(&Error{
				Kind:   KindTimedOut,
				Detail: "job did not finish within " + p.policy.Timeout().String(),
			}, attempt)
		}

		if err := p.wait(ctx, p.policy.Delay); err != nil {
			return fail(&Error{Kind: KindCanceled, Err: err}, attempt)
		}
	}
}
