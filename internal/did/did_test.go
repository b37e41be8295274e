package did

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/synthesis"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

// fakeAPI mimics the D-ID talks/clips endpoints.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest

	createStatus int
	createBody   string
	statuses     []string
	statusCode   int
	gzip         bool
	// truncate cuts gzip bodies in half.
	truncate bool
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Method == http.MethodPost {
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, &rec.body); err != nil {
				t.Errorf("request body is not json: %v", err)
			}
		}
		f.requests = append(f.requests, rec)

		var code int
		var body string
		if r.Method == http.MethodPost {
			code, body = f.createStatus, f.createBody
		} else {
			code = f.statusCode
			body = f.statuses[0]
			if len(f.statuses) > 1 {
				f.statuses = f.statuses[1:]
			}
		}
		if code == 0 {
			code = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		if f.gzip {
			w.Header().Set("Content-Encoding", "gzip")
			w.WriteHeader(code)
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte(body))
			_ = gz.Close()
			data := buf.Bytes()
			if f.truncate {
				data = data[:len(data)/2]
			}
			_, _ = w.Write(data)
			return
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.method == method {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, api *fakeAPI, endpoint Endpoint) *Client {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	c := New(zap.NewNop(), "user:secret", endpoint)
	c.APIURL = srv.URL
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		client *Client
		ok     bool
	}{
		{name: "configured", client: New(nil, "key", EndpointTalks), ok: true},
		{name: "missing key", client: New(nil, "  ", EndpointTalks)},
		{name: "unknown endpoint", client: New(nil, "key", Endpoint("streams"))},
		{name: "missing url", client: func() *Client { c := New(nil, "key", EndpointClips); c.APIURL = ""; return c }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.client.Validate()
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, synthesis.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestSubmitTalk(t *testing.T) {
	api := &fakeAPI{createStatus: http.StatusCreated, createBody: `{"id":"tlk_abc","status":"created"}`}
	c := newTestClient(t, api, EndpointTalks)
	c.EncodeKey = true

	handle, err := c.Submit(context.Background(), &synthesis.Request{Text: "Why do you want this job?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "tlk_abc" {
		t.Fatalf("unexpected handle %q", handle)
	}

	req := api.requests[0]
	if req.path != "/talks" {
		t.Fatalf("unexpected path %q", req.path)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:secret"))
	if req.auth != wantAuth {
		t.Fatalf("expected encoded credentials, got %q", req.auth)
	}

	script := req.body["script"].(map[string]any)
	if script["input"] != "Why do you want this job?" || script["type"] != "text" {
		t.Fatalf("unexpected script: %+v", script)
	}
	provider := script["provider"].(map[string]any)
	if provider["type"] != "microsoft" || provider["voice_id"] != "en-US-JennyNeural" {
		t.Fatalf("expected default voice, got %+v", provider)
	}
	if req.body["config"].(map[string]any)["stitch"] != true {
		t.Fatalf("expected stitch to be enabled, got %+v", req.body["config"])
	}
	if req.body["source_url"] != defaultSourceURL {
		t.Fatalf("expected default presenter image, got %v", req.body["source_url"])
	}
}

func TestSubmitClip(t *testing.T) {
	api := &fakeAPI{createStatus: http.StatusCreated, createBody: `{"id":"clp_1"}`}
	c := newTestClient(t, api, EndpointClips)

	req := &synthesis.Request{
		Text:      "Hello",
		Voice:     synthesis.Voice{Provider: "elevenlabs", ID: "21m00Tcm4TlvDq8ikWAM"},
		Presenter: synthesis.Presenter{ID: "amy-jcwCkr1grs", BackgroundColor: "#ffffff"},
		Format:    synthesis.Format{Fluent: synthesis.Bool(true)},
	}

	if _, err := c.Submit(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := api.requests[0]
	if got.path != "/clips" {
		t.Fatalf("unexpected path %q", got.path)
	}
	if got.auth != "Basic user:secret" {
		t.Fatalf("expected raw credentials, got %q", got.auth)
	}
	if got.body["presenter_id"] != "amy-jcwCkr1grs" {
		t.Fatalf("unexpected presenter: %v", got.body["presenter_id"])
	}
	if got.body["background"].(map[string]any)["color"] != "#ffffff" {
		t.Fatalf("unexpected background: %v", got.body["background"])
	}
	config := got.body["config"].(map[string]any)
	if config["result_format"] != "mp4" || config["fluent"] != true {
		t.Fatalf("unexpected config: %+v", config)
	}
	script := got.body["script"].(map[string]any)
	if script["subtitles"] != false {
		t.Fatalf("expected subtitles flag to be sent, got %+v", script)
	}
	if script["provider"].(map[string]any)["type"] != "elevenlabs" {
		t.Fatalf("request voice must win over defaults, got %+v", script["provider"])
	}

	if req.Voice.ID != "21m00Tcm4TlvDq8ikWAM" || req.Format.ResultFormat != "" {
		t.Fatalf("caller request must not be mutated: %+v", req)
	}
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   synthesis.Kind
	}{
		{name: "rejected", status: http.StatusPaymentRequired, body: `{"kind":"InsufficientCreditsError","description":"not enough credits"}`, kind: synthesis.KindSubmissionRejected},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"Unauthorized"}`, kind: synthesis.KindSubmissionRejected},
		{name: "missing id", status: http.StatusCreated, body: `{"status":"created"}`, kind: synthesis.KindProtocol},
		{name: "not json", status: http.StatusCreated, body: `<html>gateway</html>`, kind: synthesis.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{createStatus: tt.status, createBody: tt.body}
			c := newTestClient(t, api, EndpointTalks)

			_, err := c.Submit(context.Background(), &synthesis.Request{Text: "hi"})

			var serr *synthesis.Error
			if !errors.As(err, &serr) || serr.Kind != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			if tt.kind == synthesis.KindSubmissionRejected {
				if serr.StatusCode != tt.status {
					t.Fatalf("expected status %d, got %d", tt.status, serr.StatusCode)
				}
				if serr.Body != tt.body {
					t.Fatalf("expected provider body, got %q", serr.Body)
				}
			}
			if api.count(http.MethodPost) != 1 {
				t.Fatalf("expected a single creation request, got %d", api.count(http.MethodPost))
			}
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(zap.NewNop(), "key", EndpointTalks)
	c.APIURL = srv.URL

	_, err := c.Submit(context.Background(), &synthesis.Request{Text: "hi"})
	if !errors.Is(err, synthesis.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		state  synthesis.State
		url    string
		detail string
		kind   synthesis.Kind
	}{
		{name: "created", body: `{"id":"tlk_1","status":"created"}`, state: synthesis.StatePending},
		{name: "rejected is not terminal", body: `{"id":"tlk_1","status":"rejected"}`, state: synthesis.StatePending},
		{name: "missing status", body: `{"id":"tlk_1"}`, kind: synthesis.KindProtocol},
		{name: "blank status", body: `{"id":"tlk_1","status":"  "}`, kind: synthesis.KindProtocol},
		{name: "started", body: `{"id":"tlk_1","status":"started"}`, state: synthesis.StatePending},
		{name: "done", body: `{"id":"tlk_1","status":"done","result_url":"https://d-id.example/tlk_1.mp4"}`, state: synthesis.StateDone, url: "https://d-id.example/tlk_1.mp4"},
		{name: "done without url", body: `{"id":"tlk_1","status":"done"}`, state: synthesis.StateDone},
		{name: "error object", body: `{"status":"error","error":{"kind":"FaceError","description":"face not detected"}}`, state: synthesis.StateFailed, detail: "FaceError: face not detected"},
		{name: "error string", body: `{"status":"error","error":"bad voice"}`, state: synthesis.StateFailed, detail: "bad voice"},
		{name: "error without detail", body: `{"status":"error"}`, state: synthesis.StateFailed, detail: "provider reported an error without details"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{statuses: []string{tt.body}}
			c := newTestClient(t, api, EndpointTalks)

			status, err := c.Poll(context.Background(), "tlk_1")
			if tt.kind != synthesis.KindUnknown {
				if synthesis.KindOf(err) != tt.kind || status != nil {
					t.Fatalf("expected %s, got %v (%+v)", tt.kind, err, status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status.State != tt.state || status.ArtifactURL != tt.url || status.Detail != tt.detail {
				t.Fatalf("unexpected status: %+v", status)
			}
			if api.requests[0].path != "/talks/tlk_1" {
				t.Fatalf("unexpected path %q", api.requests[0].path)
			}
		})
	}
}

func TestPollGzip(t *testing.T) {
	api := &fakeAPI{gzip: true, statuses: []string{`{"status":"done","result_url":"https://x/y.mp4"}`}}
	c := newTestClient(t, api, EndpointClips)

	status, err := c.Poll(context.Background(), "clp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.ArtifactURL != "https://x/y.mp4" {
		t.Fatalf("unexpected artifact %q", status.ArtifactURL)
	}
}

func TestTruncatedGzipIsProtocolError(t *testing.T) {
	api := &fakeAPI{
		gzip:         true,
		truncate:     true,
		createStatus: http.StatusCreated,
		createBody:   `{"id":"tlk_1","status":"created","created_by":"google-oauth2|1234567890"}`,
		statuses:     []string{`{"id":"tlk_1","status":"done","result_url":"https://d-id.example/tlk_1.mp4"}`},
	}
	c := newTestClient(t, api, EndpointTalks)

	if _, err := c.Submit(context.Background(), &synthesis.Request{Text: "hi"}); !errors.Is(err, synthesis.ErrProtocol) {
		t.Fatalf("expected protocol error on submit, got %v", err)
	}
	if _, err := c.Poll(context.Background(), "tlk_1"); !errors.Is(err, synthesis.ErrProtocol) {
		t.Fatalf("expected protocol error on poll, got %v", err)
	}
}

func TestInvalidAPIURLIsConfigurationError(t *testing.T) {
	c := New(zap.NewNop(), "key", EndpointTalks)
	c.APIURL = "://no-scheme"

	if _, err := c.Submit(context.Background(), &synthesis.Request{Text: "hi"}); !errors.Is(err, synthesis.ErrConfiguration) {
		t.Fatalf("expected configuration error on submit, got %v", err)
	}
	if _, err := c.Poll(context.Background(), "tlk_1"); !errors.Is(err, synthesis.ErrConfiguration) {
		t.Fatalf("expected configuration error on poll, got %v", err)
	}
}

func TestSubmitFormatFlags(t *testing.T) {
	tests := []struct {
		name   string
		format synthesis.Format
		stitch bool
	}{
		{name: "default", stitch: true},
		{name: "disabled", format: synthesis.Format{Stitch: synthesis.Bool(false)}, stitch: false},
		{name: "enabled", format: synthesis.Format{Stitch: synthesis.Bool(true)}, stitch: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{createStatus: http.StatusCreated, createBody: `{"id":"tlk_1"}`}
			c := newTestClient(t, api, EndpointTalks)

			if _, err := c.Submit(context.Background(), &synthesis.Request{Text: "hi", Format: tt.format}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := api.requests[0].body["config"].(map[string]any)["stitch"]; got != tt.stitch {
				t.Fatalf("expected stitch %v, got %v", tt.stitch, got)
			}
		})
	}
}

func TestSubmitClipSubtitles(t *testing.T) {
	api := &fakeAPI{createStatus: http.StatusCreated, createBody: `{"id":"clp_1"}`}
	c := newTestClient(t, api, EndpointClips)
	c.Format.Fluent = synthesis.Bool(true)

	req := &synthesis.Request{Text: "hi", Format: synthesis.Format{Subtitles: synthesis.Bool(true), Fluent: synthesis.Bool(false)}}
	if _, err := c.Submit(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := api.requests[0].body
	if body["script"].(map[string]any)["subtitles"] != true {
		t.Fatalf("expected subtitles, got %+v", body["script"])
	}
	if body["config"].(map[string]any)["fluent"] != false {
		t.Fatalf("request flag must override the client default, got %+v", body["config"])
	}
}

func TestPollBadStatusIsTransportError(t *testing.T) {
	api := &fakeAPI{statusCode: http.StatusBadGateway, statuses: []string{"upstream unavailable"}}
	c := newTestClient(t, api, EndpointTalks)

	_, err := c.Poll(context.Background(), "tlk_1")

	var serr *synthesis.Error
	if !errors.As(err, &serr) || serr.Kind != synthesis.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if serr.StatusCode != http.StatusBadGateway || serr.Body != "upstream unavailable" {
		t.Fatalf("expected status and body to be kept, got %+v", serr)
	}
}

func TestSynthesizeAgainstFakeAPI(t *testing.T) {
	api := &fakeAPI{
		createStatus: http.StatusCreated,
		createBody:   `{"id":"tlk_42","status":"created"}`,
		statuses: []string{
			`{"status":"started"}`,
			`{"status":"started"}`,
			`{"status":"done","result_url":"https://x/y.mp4"}`,
		},
	}
	c := newTestClient(t, api, EndpointTalks)

	s := synthesis.New(c, synthesis.Policy{MaxAttempts: 3, Delay: time.Millisecond}, zap.NewNop())

	res, err := s.Synthesize(context.Background(), &synthesis.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ArtifactURL != "https://x/y.mp4" || res.Attempts != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if api.count(http.MethodPost) != 1 || api.count(http.MethodGet) != 3 {
		t.Fatalf("expected 1 creation and 3 status queries, got %d and %d",
			api.count(http.MethodPost), api.count(http.MethodGet))
	}
}

func TestSynthesizeMissingStatusFailsFast(t *testing.T) {
	api := &fakeAPI{
		createStatus: http.StatusCreated,
		createBody:   `{"id":"tlk_1","status":"created"}`,
		statuses:     []string{`{"id":"tlk_1"}`},
	}
	c := newTestClient(t, api, EndpointTalks)

	s := synthesis.New(c, synthesis.Policy{MaxAttempts: 5, Delay: time.Millisecond}, zap.NewNop())

	_, err := s.Synthesize(context.Background(), &synthesis.Request{Text: "hello"})

	var serr *synthesis.Error
	if !errors.As(err, &serr) || serr.Kind != synthesis.KindProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if serr.Attempt != 1 || api.count(http.MethodGet) != 1 {
		t.Fatalf("expected to stop after one status query, got attempt %d and %d queries", serr.Attempt, api.count(http.MethodGet))
	}
}

func TestSynthesizeWithoutKeyMakesNoRequests(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, EndpointTalks)
	c.apiKey = ""

	s := synthesis.New(c, synthesis.DefaultPolicy(), zap.NewNop())

	_, err := s.Synthesize(context.Background(), &synthesis.Request{Text: "hello"})
	if !errors.Is(err, synthesis.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(api.requests))
	}
}

func TestErrorDetail(t *testing.T) {
	if got := errorDetail(map[string]any{"description": "only description"}); got != "only description" {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := errorDetail(42); !strings.Contains(got, "42") {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := errorDetail(map[string]any{}); !bytes.Contains([]byte(got), []byte("map")) {
		t.Fatalf("expected raw value for empty object, got %q", got)
	}
}
