package veo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/avatar-synth/internal/synthesis"
	"github.com/spigell/avatar-synth/internal/utils"
)

const (
	Name = "veo"

	defaultModel = "veo-2.0-generate-001"
)

type operations interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type genaiOperations struct {
	client *genai.Client
}

func (g genaiOperations) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return g.client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

func (g genaiOperations) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	return g.client.Operations.GetVideosOperation(ctx, op, config)
}

// Config describes the Veo generation settings.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	AspectRatio     string
	DurationSeconds int32
	NegativePrompt  string
}

var _ synthesis.Provider = &Generator{}

// Generator submits prompts as Veo long-running operations.
type Generator struct {
	ops    operations
	model  string
	config Config
	logger *zap.Logger
}

// NewGenerator builds the adapter. A missing API key is not an error here;
// Validate reports it when an operation starts.
func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	g := &Generator{model: model, config: cfg, logger: logger}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return g, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g.ops = genaiOperations{client: client}
	return g, nil
}

func (g *Generator) Name() string {
	return Name
}

func (g *Generator) Model() string {
	return g.model
}

func (g *Generator) Validate() error {
	if g.ops == nil {
		return synthesis.Configuration("gemini api key is not configured (set GEMINI_API_KEY)")
	}
	return nil
}

func (g *Generator) Submit(ctx context.Context, req *synthesis.Request) (synthesis.Handle, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    g.config.AspectRatio,
		NegativePrompt: g.config.NegativePrompt,
	}
	if g.config.DurationSeconds > 0 {
		duration := g.config.DurationSeconds
		cfg.DurationSeconds = &duration
	}

	op, err := g.ops.GenerateVideos(ctx, g.model, req.Text, nil, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &synthesis.Error{
				Kind:       synthesis.KindSubmissionRejected,
				StatusCode: apiErr.Code,
				Body:       utils.TruncateForLog(apiErr.Message, 512),
				Detail:     apiErr.Status,
			}
		}
		return "", synthesis.Transport(err)
	}

	if op == nil || strings.TrimSpace(op.Name) == "" {
		return "", synthesis.Protocol("generate videos response has no operation name")
	}

	g.logger.Debug("veo operation started", zap.String("operation", op.Name), zap.String("model", g.model))

	return synthesis.Handle(op.Name), nil
}

func (g *Generator) Poll(ctx context.Context, handle synthesis.Handle) (*synthesis.Status, error) {
	op, err := g.ops.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: handle.String()}, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &synthesis.Error{
				Kind:       synthesis.KindTransport,
				StatusCode: apiErr.Code,
				Body:       utils.TruncateForLog(apiErr.Message, 512),
				Detail:     "operation query failed",
			}
		}
		return nil, synthesis.Transport(err)
	}

	if op == nil {
		return nil, synthesis.Protocol("operation query returned nothing")
	}

	return toStatus(op)
}

func toStatus(op *genai.GenerateVideosOperation) (*synthesis.Status, error) {
	if !op.Done {
		// a running operation always echoes its name
		if strings.TrimSpace(op.Name) == "" {
			return nil, synthesis.Protocol("operation response has no name and is not done")
		}
		return &synthesis.Status{State: synthesis.StatePending, Raw: "running"}, nil
	}

	if op.Error != nil {
		return &synthesis.Status{State: synthesis.StateFailed, Raw: "error", Detail: operationError(op.Error)}, nil
	}

	if op.Response != nil {
		for _, generated := range op.Response.GeneratedVideos {
			if generated == nil || generated.Video == nil || generated.Video.URI == "" {
				continue
			}
			return &synthesis.Status{State: synthesis.StateDone, Raw: "done", ArtifactURL: generated.Video.URI}, nil
		}

		if op.Response.RAIMediaFilteredCount > 0 {
			detail := "all videos were filtered by safety policy"
			if len(op.Response.RAIMediaFilteredReasons) > 0 {
				detail += ": " + strings.Join(op.Response.RAIMediaFilteredReasons, "; ")
			}
			return &synthesis.Status{State: synthesis.StateFailed, Raw: "filtered", Detail: detail}, nil
		}
	}

	// done without a usable video; the poller reports it as a protocol error
	return &synthesis.Status{State: synthesis.StateDone, Raw: "done"}, nil
}

func operationError(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", e)
}
