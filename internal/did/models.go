package did

import (
	"fmt"
	"strings"

	"github.com/spigell/avatar-synth/internal/synthesis"
)

const (
	statusDone  = "done"
	statusError = "error"
)

type script struct {
	Type      string         `json:"type"`
	Input     string         `json:"input"`
	Subtitles *bool          `json:"subtitles,omitempty"`
	Provider  scriptProvider `json:"provider"`
}

type scriptProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id,omitempty"`
}

type talkConfig struct {
	Stitch bool `json:"stitch"`
}

type talkRequest struct {
	Script    script     `json:"script"`
	Config    talkConfig `json:"config"`
	SourceURL string     `json:"source_url,omitempty"`
}

func newTalkRequest(r synthesis.Request) *talkRequest {
	return &talkRequest{
		Script: script{
			Type:  "text",
			Input: r.Text,
			Provider: scriptProvider{
				Type:    r.Voice.Provider,
				VoiceID: r.Voice.ID,
			},
		},
		Config:    talkConfig{Stitch: flag(r.Format.Stitch)},
		SourceURL: r.Presenter.SourceURL,
	}
}

type clipConfig struct {
	ResultFormat string `json:"result_format,omitempty"`
	Fluent       bool   `json:"fluent"`
}

type background struct {
	Color string `json:"color"`
}

type clipRequest struct {
	Script      script      `json:"script"`
	Config      clipConfig  `json:"config"`
	PresenterID string      `json:"presenter_id,omitempty"`
	Background  *background `json:"background,omitempty"`
}

func newClipRequest(r synthesis.Request) *clipRequest {
	subtitles := flag(r.Format.Subtitles)

	req := &clipRequest{
		Script: script{
			Type:      "text",
			Input:     r.Text,
			Subtitles: &subtitles,
			Provider: scriptProvider{
				Type:    r.Voice.Provider,
				VoiceID: r.Voice.ID,
			},
		},
		Config: clipConfig{
			ResultFormat: r.Format.ResultFormat,
			Fluent:       flag(r.Format.Fluent),
		},
		PresenterID: r.Presenter.ID,
	}

	if r.Presenter.BackgroundColor != "" {
		req.Background = &background{Color: r.Presenter.BackgroundColor}
	}

	return req
}

func flag(v *bool) bool {
	return v != nil && *v
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
	// Error is either a plain string or an object with kind and description.
	Error any `json:"error"`
}

func (s *statusResponse) toStatus() (*synthesis.Status, error) {
	raw := strings.TrimSpace(s.Status)
	if raw == "" {
		return nil, synthesis.Protocol("status response has no status field")
	}

	status := &synthesis.Status{Raw: s.Status}

	switch strings.ToLower(raw) {
	case statusDone:
		status.State = synthesis.StateDone
		status.ArtifactURL = strings.TrimSpace(s.ResultURL)
	case statusError:
		status.State = synthesis.StateFailed
		status.Detail = errorDetail(s.Error)
	default:
		status.State = synthesis.StatePending
	}

	return status, nil
}

func errorDetail(v any) string {
	switch e := v.(type) {
	case nil:
		return "provider reported an error without details"
	case string:
		return e
	case map[string]any:
		description, _ := e["description"].(string)
		kind, _ := e["kind"].(string)
		switch {
		case kind != "" && description != "":
			return kind + ": " + description
		case description != "":
			return description
		case kind != "":
			return kind
		}
	}

	return fmt.Sprintf("%v", v)
}
