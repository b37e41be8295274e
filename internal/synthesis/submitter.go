package synthesis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
)

// Submitter sends creation requests. It never retries.
type Submitter struct {
	provider Provider
	logger   *zap.Logger
}

func NewSubmitter(provider Provider, log *zap.Logger) *Submitter {
	return &Submitter{
		provider: provider,
		logger:   logger.WithFields(log),
	}
}

// Submit validates the request and the provider configuration before issuing
// exactly one creation call.
func (s *Submitter) Submit(ctx context.Context, req *Request) (Handle, error) {
	name := s.provider.Name()

	if err := req.Validate(); err != nil {
		return "", classify(ctx, err, OpValidate, name)
	}

	if err := s.provider.Validate(); err != nil {
		e := classify(ctx, err, OpValidate, name)
		if e.Kind != KindConfiguration {
			e = &Error{Kind: KindConfiguration, Op: OpValidate, Provider: name, Err: err}
		}
		return "", e
	}

	s.logger.Debug("submitting synthesis job",
		zap.String(logger.FieldProvider, name),
		zap.Int("text_length", len([]rune(req.Text))),
	)

	handle, err := s.provider.Submit(ctx, req)
	if err != nil {
		return "", classify(ctx, err, OpSubmit, name)
	}

	if strings.TrimSpace(handle.String()) == "" {
		return "", &Error{
			Kind:     KindProtocol,
			Op:       OpSubmit,
			Provider: name,
			Detail:   "provider response has no job id",
		}
	}

	return handle, nil
}
