package synthesis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
)

// Synthesizer owns one submission and one polling run per call.
type Synthesizer struct {
	provider  Provider
	submitter *Submitter
	poller    *Poller
	logger    *zap.Logger
}

// New wires a submitter and a poller around the provider.
func New(provider Provider, policy Policy, log *zap.Logger) *Synthesizer {
	log = logger.WithFields(log)

	return &Synthesizer{
		provider:  provider,
		submitter: NewSubmitter(provider, log),
		poller:    NewPoller(provider, policy, log),
		logger:    log,
	}
}

// Provider returns the name of the wrapped provider.
func (s *Synthesizer) Provider() string {
	return s.provider.Name()
}

// Synthesize turns text into a clip and returns its URL.
// Any error is a *Error; exactly one outcome is produced per call.
func (s *Synthesizer) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	name := s.provider.Name()
	started := time.Now()

	handle, err := s.submitter.Submit(ctx, req)
	if err != nil {
		s.logger.Warn("synthesis submission failed",
			zap.String(logger.FieldProvider, name),
			zap.Error(err),
		)
		return nil, err
	}

	log := logger.WithCommonFields(s.logger, name, handle.String())
	log.Info("synthesis job submitted", zap.Duration("timeout", s.poller.Policy().Timeout()))

	url, attempts, err := s.poller.Poll(ctx, handle)
	if err != nil {
		log.Warn("synthesis failed",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("synthesis completed",
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(started)),
		zap.String("result_url", url),
	)

	return &Result{
		ArtifactURL: url,
		Handle:      handle,
		Attempts:    attempts,
		Provider:    name,
	}, nil
}
