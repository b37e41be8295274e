package did

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/synthesis"
)

const (
	Name = "d-id"

	apiURL    = "https://api.d-id.com"
	userAgent = "spigell/avatar-synth"

	defaultVoiceProvider = "microsoft"
	defaultVoiceID       = "en-US-JennyNeural"
	defaultSourceURL     = "https://create-images-results.d-id.com/DefaultPresenters/Noelle_f/image.png"
	defaultResultFormat  = "mp4"
)

// Endpoint selects which D-ID product API is used.
type Endpoint string

const (
	EndpointTalks Endpoint = "talks"
	EndpointClips Endpoint = "clips"
)

var _ synthesis.Provider = &Client{}

type Client struct {
	apiKey   string
	endpoint Endpoint
	logger   *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string

	// EncodeKey base64-encodes the key before sending it as Basic credentials.
	// Keys copied from the D-ID studio are already encoded.
	EncodeKey bool

	// Defaults fill whatever the request leaves empty.
	Voice     synthesis.Voice
	Presenter synthesis.Presenter
	Format    synthesis.Format
}

func New(logger *zap.Logger, apiKey string, endpoint Endpoint) *Client {
	if endpoint == "" {
		endpoint = EndpointTalks
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		logger:   logger,
		APIURL:   apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: userAgent,
		Voice: synthesis.Voice{
			Provider: defaultVoiceProvider,
			ID:       defaultVoiceID,
		},
		Presenter: synthesis.Presenter{
			SourceURL: defaultSourceURL,
		},
		Format: synthesis.Format{
			ResultFormat: defaultResultFormat,
			Stitch:       synthesis.Bool(true),
		},
	}
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) Validate() error {
	if c.apiKey == "" {
		return synthesis.Configuration("d-id api key is not configured (set D_ID_API_KEY)")
	}

	if strings.TrimSpace(c.APIURL) == "" {
		return synthesis.Configuration("d-id api url is not configured")
	}

	switch c.endpoint {
	case EndpointTalks, EndpointClips:
	default:
		return synthesis.Configuration(fmt.Sprintf("unsupported d-id endpoint %q", c.endpoint))
	}

	return nil
}

func (c *Client) Submit(ctx context.Context, req *synthesis.Request) (synthesis.Handle, error) {
	r := c.withDefaults(req)

	var body any
	switch c.endpoint {
	case EndpointClips:
		body = newClipRequest(r)
	default:
		body = newTalkRequest(r)
	}

	var created createResponse
	if err := c.postJSON(ctx, c.collectionURL(), body, &created); err != nil {
		return "", err
	}

	if strings.TrimSpace(created.ID) == "" {
		return "", synthesis.Protocol("creation response has no id")
	}

	c.logger.Debug("d-id job created",
		zap.String("endpoint", string(c.endpoint)),
		zap.String("job_id", created.ID),
		zap.String("status", created.Status),
	)

	return synthesis.Handle(created.ID), nil
}

func (c *Client) Poll(ctx context.Context, handle synthesis.Handle) (*synthesis.Status, error) {
	var status statusResponse
	if err := c.getJSON(ctx, c.collectionURL()+"/"+url.PathEscape(handle.String()), &status); err != nil {
		return nil, err
	}

	return status.toStatus()
}

func (c *Client) collectionURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/" + string(c.endpoint)
}

// withDefaults returns a copy of req completed with the client defaults.
func (c *Client) withDefaults(req *synthesis.Request) synthesis.Request {
	r := *req

	if r.Voice.Provider == "" {
		r.Voice.Provider = c.Voice.Provider
	}
	if r.Voice.ID == "" {
		r.Voice.ID = c.Voice.ID
	}
	if r.Presenter.ID == "" {
		r.Presenter.ID = c.Presenter.ID
	}
	if r.Presenter.SourceURL == "" {
		r.Presenter.SourceURL = c.Presenter.SourceURL
	}
	if r.Presenter.BackgroundColor == "" {
		r.Presenter.BackgroundColor = c.Presenter.BackgroundColor
	}
	if r.Format.ResultFormat == "" {
		r.Format.ResultFormat = c.Format.ResultFormat
	}
	if r.Format.Stitch == nil {
		r.Format.Stitch = c.Format.Stitch
	}
	if r.Format.Fluent == nil {
		r.Format.Fluent = c.Format.Fluent
	}
	if r.Format.Subtitles == nil {
		r.Format.Subtitles = c.Format.Subtitles
	}

	return r
}
