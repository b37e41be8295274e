package did

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/synthesis"
	"github.com/spigell/avatar-synth/internal/utils"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	// Longest response body kept in errors.
	maxBodySnippet = 512
)

// errUnreadableBody marks a response that arrived but whose body could not be decoded.
var errUnreadableBody = errors.New("unreadable response body")

// postJSON sends a creation request. A non-2xx answer is a rejected submission.
func (c *Client) postJSON(ctx context.Context, url string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return invalidURL(err)
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	code, data, err := c.request(req)
	if err != nil && !errors.Is(err, errUnreadableBody) {
		return synthesis.Transport(err)
	}

	if !isSuccess(code) {
		return synthesis.Rejected(code, utils.TruncateForLog(string(data), maxBodySnippet))
	}

	if err != nil {
		return unreadable(err)
	}

	return decode(data, target)
}

// getJSON queries a job. A non-2xx answer is reported as a transport failure
// carrying the status code.
func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return invalidURL(err)
	}

	req = c.setHeaders(req)

	code, data, err := c.request(req)
	if err != nil && !errors.Is(err, errUnreadableBody) {
		return synthesis.Transport(err)
	}

	if !isSuccess(code) {
		return &synthesis.Error{
			Kind:       synthesis.KindTransport,
			StatusCode: code,
			Body:       utils.TruncateForLog(string(data), maxBodySnippet),
			Detail:     "status query failed",
		}
	}

	if err != nil {
		return unreadable(err)
	}

	return decode(data, target)
}

func (c *Client) request(req *http.Request) (int, []byte, error) {
	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	gzipped := resp.Header.Get("Content-Encoding") == "gzip"
	if gzipped {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, c.bodyError(req, err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		if gzipped {
			err = c.bodyError(req, err)
		}
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, data, nil
}

// bodyError marks a decoding failure unless the request was cancelled mid-read.
func (c *Client) bodyError(req *http.Request, err error) error {
	if req.Context().Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", errUnreadableBody, err)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Basic "+c.credentials())
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func (c *Client) credentials() string {
	if c.EncodeKey {
		return base64.StdEncoding.EncodeToString([]byte(c.apiKey))
	}
	return c.apiKey
}

// decode parses a 2xx body. Anything unusable is a protocol error.
func decode(data []byte, target any) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &synthesis.Error{
			Kind:   synthesis.KindProtocol,
			Detail: "response is not a json object",
			Body:   utils.TruncateForLog(string(data), maxBodySnippet),
			Err:    err,
		}
	}

	cfg := &mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}

	if err := decoder.Decode(raw); err != nil {
		return &synthesis.Error{Kind: synthesis.KindProtocol, Detail: "unexpected response shape", Err: err}
	}

	return nil
}

func invalidURL(err error) error {
	return &synthesis.Error{Kind: synthesis.KindConfiguration, Detail: "d-id api url is invalid", Err: err}
}

func unreadable(err error) error {
	return &synthesis.Error{Kind: synthesis.KindProtocol, Detail: "response body could not be decoded", Err: err}
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
