// Package provider is the adapter for the external try-on provider. Every
// response is decoded once here into SubmitResult or StatusResult so callers
// never branch on raw HTTP status codes.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/config"
)

const (
	maxResponseBytes    = 1 << 20
	DefaultMaxImageSize = 20 << 20
)

// errOutputUnavailable marks a URL output that could not be fetched this time.
// The job itself has completed, so the next poll fetches it again.
var errOutputUnavailable = errors.New("output temporarily unavailable")

// Client talks to the provider API.
type Client struct {
	baseURL      string
	apiKey       string
	mode         string
	timeout      time.Duration
	api          *http.Client
	output       *http.Client
	maxImageSize int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.api = c }
}

// WithOutputClient replaces the client used to download URL outputs. The
// default one refuses private, loopback and link-local destinations.
func WithOutputClient(c *http.Client) Option {
	return func(cl *Client) { cl.output = c }
}

// WithMaxImageSize caps decoded and downloaded images.
func WithMaxImageSize(n int64) Option {
	return func(cl *Client) { cl.maxImageSize = n }
}

func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.ProviderBaseURL, "/"),
		apiKey:       cfg.ProviderAPIKey,
		mode:         cfg.ProviderMode,
		timeout:      cfg.ProviderRequestTimeout,
		api:          &http.Client{Timeout: cfg.ProviderRequestTimeout},
		maxImageSize: DefaultMaxImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.output == nil {
		c.output = newSafeClient(c.timeout)
	}
	return c
}

func newSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

type runRequest struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Mode         string `json:"mode,omitempty"`
}

type runResponse struct {
	ID    string          `json:"id"`
	Error json.RawMessage `json:"error"`
}

type statusResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Submit starts a try-on job. It makes exactly one request.
func (c *Client) Submit(ctx context.Context, person, garment []byte) SubmitResult {
	body, err := json.Marshal(runRequest{
		ModelImage:   dataURI(person),
		GarmentImage: dataURI(garment),
		Mode:         c.mode,
	})
	if err != nil {
		return SubmitResult{Kind: SubmitFailed, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return SubmitResult{Kind: SubmitFailed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return SubmitResult{Kind: SubmitFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return SubmitResult{Kind: SubmitFailed, HTTPStatus: resp.StatusCode, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return SubmitResult{Kind: SubmitUnauthorized, HTTPStatus: resp.StatusCode, Message: errorText(raw)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return SubmitResult{
			Kind:       SubmitRateLimited,
			HTTPStatus: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Message:    errorText(raw),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return SubmitResult{Kind: SubmitFailed, HTTPStatus: resp.StatusCode, Message: errorText(raw)}
	}

	var rr runResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return SubmitResult{Kind: SubmitFailed, HTTPStatus: resp.StatusCode, Message: "malformed run response"}
	}
	if msg := errorMessage(rr.Error); msg != "" {
		return SubmitResult{Kind: SubmitFailed, HTTPStatus: resp.StatusCode, Message: msg}
	}
	if rr.ID == "" {
		return SubmitResult{Kind: SubmitFailed, HTTPStatus: resp.StatusCode, Message: "run response without id"}
	}
	return SubmitResult{Kind: SubmitAccepted, HTTPStatus: resp.StatusCode, JobID: rr.ID}
}

// Status polls a job once. A completed job has its output decoded into an
// Image; an undecodable output is reported as StatusFailed, an output URL that
// cannot be reached right now as StatusUnavailable. Rejected credentials are
// fatal.
func (c *Client) Status(ctx context.Context, jobID string) StatusResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return StatusResult{Kind: StatusUnavailable, Message: err.Error()}
	}
	c.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return StatusResult{Kind: StatusUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.statusBodyLimit()))
	if err != nil {
		return StatusResult{Kind: StatusUnavailable, Message: err.Error()}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return StatusResult{Kind: StatusFailed, Message: fmt.Sprintf("provider rejected credentials (status %d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return StatusResult{Kind: StatusUnavailable, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, errorText(raw))}
	}

	var sr statusResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return StatusResult{Kind: StatusUnavailable, Message: "malformed status response"}
	}

	switch strings.ToLower(sr.Status) {
	case "completed":
		img, err := c.decodeOutput(ctx, sr.Output)
		if errors.Is(err, errOutputUnavailable) {
			return StatusResult{Kind: StatusUnavailable, Message: err.Error()}
		}
		if err != nil {
			return StatusResult{Kind: StatusFailed, Message: "unusable output: " + err.Error()}
		}
		return StatusResult{Kind: StatusCompleted, Image: img}
	case "failed", "canceled":
		msg := errorMessage(sr.Error)
		if msg == "" {
			msg = "provider reported failure"
		}
		return StatusResult{Kind: StatusFailed, Message: msg}
	default:
		return StatusResult{Kind: StatusPending}
	}
}

// statusBodyLimit leaves room for an inline base64 image of the maximum size.
func (c *Client) statusBodyLimit() int64 {
	return c.maxImageSize*4/3 + maxResponseBytes
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerScheme+" "+c.apiKey)
	}
}

// decodeOutput accepts a string or an array of strings (first one wins).
// Each string may be a data URI, an http(s) URL or bare base64.
func (c *Client) decodeOutput(ctx context.Context, raw json.RawMessage) (*Image, error) {
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return nil, errors.New("no output")
		}
		out = list[0]
	}
	out = strings.TrimSpace(out)

	switch {
	case out == "":
		return nil, errors.New("empty output")
	case strings.HasPrefix(out, "data:"):
		return c.decodeDataURI(out)
	case strings.HasPrefix(out, "http://") || strings.HasPrefix(out, "https://"):
		return c.fetch(ctx, out)
	default:
		return c.decodeBase64(out, "")
	}
}

func (c *Client) decodeDataURI(uri string) (*Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, errors.New("data uri is not base64")
	}
	return c.decodeBase64(payload, mediaType)
}

func (c *Client) decodeBase64(s, contentType string) (*Image, error) {
	if int64(base64.StdEncoding.DecodedLen(len(s))) > c.maxImageSize {
		return nil, errors.New("image too large")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
	}
	return newImage(data, contentType)
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.output.Do(req)
	if err != nil {
		if blockedByPolicy(err) {
			return nil, fmt.Errorf("fetch output: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", errOutputUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", errOutputUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch output: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errOutputUnavailable, err)
	}
	if int64(len(data)) > c.maxImageSize {
		return nil, errors.New("image too large")
	}
	return newImage(data, resp.Header.Get("Content-Type"))
}

// blockedByPolicy reports whether the SSRF guard refused the destination.
// Such an output never becomes fetchable.
func blockedByPolicy(err error) bool {
	var (
		ipErr     *safeurl.AllowedIPError
		portErr   *safeurl.AllowedPortError
		schemeErr *safeurl.AllowedSchemeError
		hostErr   *safeurl.AllowedHostError
		badHost   *safeurl.InvalidHostError
		ipv6Err   *safeurl.IPv6BlockedError
	)
	return errors.As(err, &ipErr) || errors.As(err, &portErr) || errors.As(err, &schemeErr) ||
		errors.As(err, &hostErr) || errors.As(err, &badHost) || errors.As(err, &ipv6Err)
}

func newImage(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

func dataURI(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

// errorMessage reads an error that is either a string or {"message": "..."}.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Name
	}
	return string(raw)
}

func errorText(body []byte) string {
	var r struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &r); err == nil {
		if msg := errorMessage(r.Error); msg != "" {
			return msg
		}
		if r.Message != "" {
			return r.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
