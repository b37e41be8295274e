package replicate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/replicate/replicate-go"
	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/synthesis"
	"github.com/spigell/avatar-synth/internal/utils"
)

const (
	Name = "replicate"

	defaultTextInput = "text"
)

type predictions interface {
	CreatePredictionWithModel(ctx context.Context, modelOwner, modelName string, input replicate.PredictionInput, webhook *replicate.Webhook, stream bool) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// Config describes a Replicate model used for synthesis.
type Config struct {
	APIToken string
	// Model is "owner/name".
	Model   string
	BaseURL string
	// TextInput is the model input field receiving the request text.
	TextInput string
	// VoiceInput is the model input field receiving the voice id, if the model has one.
	VoiceInput string
	// Input holds static model inputs sent with every prediction.
	Input map[string]any
}

var _ synthesis.Provider = &Client{}

type Client struct {
	client      predictions
	owner, name string
	config      Config
	logger      *zap.Logger
}

// New builds the adapter. Missing token or model are reported by Validate.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{config: cfg, logger: logger}
	c.owner, c.name, _ = strings.Cut(strings.TrimSpace(cfg.Model), "/")

	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return c, nil
	}

	options := []replicate.ClientOption{replicate.WithToken(token)}
	if cfg.BaseURL != "" {
		options = append(options, replicate.WithBaseURL(cfg.BaseURL))
	}

	client, err := replicate.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("create replicate client: %w", err)
	}

	c.client = client
	return c, nil
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) Validate() error {
	if c.client == nil {
		return synthesis.Configuration("replicate api token is not configured (set REPLICATE_API_TOKEN)")
	}
	if c.owner == "" || c.name == "" {
		return synthesis.Configuration(fmt.Sprintf("replicate model must look like owner/name, got %q", c.config.Model))
	}
	return nil
}

func (c *Client) Submit(ctx context.Context, req *synthesis.Request) (synthesis.Handle, error) {
	prediction, err := c.client.CreatePredictionWithModel(ctx, c.owner, c.name, c.input(req), nil, false)
	if err != nil {
		var apiErr *replicate.APIError
		if errors.As(err, &apiErr) {
			return "", &synthesis.Error{
				Kind:       synthesis.KindSubmissionRejected,
				StatusCode: apiErr.Status,
				Body:       utils.TruncateForLog(apiErr.Detail, 512),
				Detail:     apiErr.Title,
			}
		}
		return "", synthesis.Transport(err)
	}

	if prediction == nil || strings.TrimSpace(prediction.ID) == "" {
		return "", synthesis.Protocol("prediction has no id")
	}

	c.logger.Debug("replicate prediction created",
		zap.String("prediction", prediction.ID),
		zap.String("model", c.owner+"/"+c.name),
	)

	return synthesis.Handle(prediction.ID), nil
}

func (c *Client) Poll(ctx context.Context, handle synthesis.Handle) (*synthesis.Status, error) {
	prediction, err := c.client.GetPrediction(ctx, handle.String())
	if err != nil {
		var apiErr *replicate.APIError
		if errors.As(err, &apiErr) {
			return nil, &synthesis.Error{
				Kind:       synthesis.KindTransport,
				StatusCode: apiErr.Status,
				Body:       utils.TruncateForLog(apiErr.Detail, 512),
				Detail:     "prediction query failed",
			}
		}
		return nil, synthesis.Transport(err)
	}

	if prediction == nil {
		return nil, synthesis.Protocol("prediction query returned nothing")
	}

	return toStatus(prediction)
}

func (c *Client) input(req *synthesis.Request) replicate.PredictionInput {
	input := replicate.PredictionInput{}
	for k, v := range c.config.Input {
		input[k] = v
	}

	key := c.config.TextInput
	if key == "" {
		key = defaultTextInput
	}
	input[key] = req.Text

	if c.config.VoiceInput != "" && req.Voice.ID != "" {
		input[c.config.VoiceInput] = req.Voice.ID
	}

	return input
}

func toStatus(p *replicate.Prediction) (*synthesis.Status, error) {
	if strings.TrimSpace(string(p.Status)) == "" {
		return nil, synthesis.Protocol("prediction has no status")
	}

	status := &synthesis.Status{Raw: string(p.Status)}

	switch p.Status {
	case replicate.Succeeded:
		status.State = synthesis.StateDone
		status.ArtifactURL = outputURL(p.Output)
	case replicate.Failed, replicate.Canceled:
		status.State = synthesis.StateFailed
		status.Detail = string(p.Status)
		if p.Error != nil {
			status.Detail = fmt.Sprintf("%v", p.Error)
		}
	default:
		status.State = synthesis.StatePending
	}

	return status, nil
}

// outputURL picks the first URL from a prediction output.
func outputURL(output any) string {
	switch v := output.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range v {
			if s := outputURL(item); s != "" {
				return s
			}
		}
	case map[string]any:
		for _, key := range []string{"url", "video", "output"} {
			if s := outputURL(v[key]); s != "" {
				return s
			}
		}
	}

	return ""
}
