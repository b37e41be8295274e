package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
	"github.com/spigell/avatar-synth/internal/synthesis"
)

const maxBodySize = 1 << 20

func (h *Handler) handleClips(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String(logger.FieldRequest, requestIDFrom(r.Context())))

	var body ClipRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&body); err != nil {
		log.Debug("malformed clip request", zap.Error(err))
		writeJson(w, http.StatusBadRequest, ErrorResponse{
			Error:  "malformed request body",
			Kind:   synthesis.KindInvalidInput.String(),
			Detail: err.Error(),
		})
		return
	}

	req := &synthesis.Request{
		Text: body.Text,
		Voice: synthesis.Voice{
			Provider: body.VoiceProvider,
			ID:       body.VoiceID,
		},
		Presenter: synthesis.Presenter{
			ID:              body.PresenterID,
			SourceURL:       body.SourceURL,
			BackgroundColor: body.BgColor,
		},
	}

	result, err := h.synthesizer.Synthesize(r.Context(), req)
	if err != nil {
		h.fail(w, log, err)
		return
	}

	log.Info("clip created",
		zap.String(logger.FieldJob, result.Handle.String()),
		zap.String("result_url", result.ArtifactURL),
	)

	writeJson(w, http.StatusOK, ClipResponse{
		ResultURL: result.ArtifactURL,
		JobID:     result.Handle.String(),
		Attempts:  result.Attempts,
	})
}

func (h *Handler) fail(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := synthesis.KindOf(err)

	if h.options.FallbackURL != "" && kind != synthesis.KindInvalidInput {
		log.Warn("clip failed, answering with fallback", zap.Stringer("kind", kind), zap.Error(err))
		writeJson(w, http.StatusOK, ClipResponse{
			ResultURL: h.options.FallbackURL,
			Fallback:  true,
			Error:     err.Error(),
			Kind:      kind.String(),
		})
		return
	}

	log.Warn("clip failed", zap.Stringer("kind", kind), zap.Error(err))

	resp := ErrorResponse{
		Error: err.Error(),
		Kind:  kind.String(),
	}

	var serr *synthesis.Error
	if errors.As(err, &serr) {
		resp.Detail = serr.Detail
		if resp.Detail == "" {
			resp.Detail = serr.Body
		}
	}

	writeJson(w, statusCode(err), resp)
}

func statusCode(err error) int {
	var serr *synthesis.Error
	if !errors.As(err, &serr) {
		return http.StatusInternalServerError
	}

	switch serr.Kind {
	case synthesis.KindInvalidInput:
		return http.StatusBadRequest
	case synthesis.KindConfiguration:
		return http.StatusInternalServerError
	case synthesis.KindSubmissionRejected:
		if serr.StatusCode >= 400 && serr.StatusCode <= 599 {
			return serr.StatusCode
		}
		return http.StatusBadGateway
	case synthesis.KindProtocol, synthesis.KindProviderFailed, synthesis.KindTransport:
		return http.StatusBadGateway
	case synthesis.KindTimedOut:
		return http.StatusGatewayTimeout
	case synthesis.KindCanceled:
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
