package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/netx"
)

const maxErrorBody = 64 << 10

// MaxResultSize bounds a downloaded try-on image.
const MaxResultSize = 20 << 20

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	auth        bool
}

// HTTPClient talks to the stylist HTTP API. Authenticated calls carry the
// stored access token; a 401 triggers one refresh and one retry.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	tokens  TokenStore

	refreshMu sync.Mutex
}

func NewHTTPClient(baseURL string, hc *http.Client, tokens TokenStore) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, tokens: tokens}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/health"}, nil)
}

func (c *HTTPClient) Register(ctx context.Context, email, password, displayName string) (*models.Session, error) {
	return c.startSession(ctx, "/api/auth/register", map[string]string{
		"email": email, "password": password, "display_name": displayName,
	})
}

func (c *HTTPClient) Guest(ctx context.Context, displayName string) (*models.Session, error) {
	return c.startSession(ctx, "/api/auth/guest", map[string]string{"display_name": displayName})
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.Session, error) {
	return c.startSession(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *HTTPClient) startSession(ctx context.Context, path string, payload any) (*models.Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: body, contentType: "application/json"}, &s); err != nil {
		return nil, err
	}
	if s.Tokens == nil {
		return nil, errors.New("server returned no tokens")
	}
	if err := c.tokens.SaveTokens(ctx, s.Tokens); err != nil {
		return nil, fmt.Errorf("save tokens: %w", err)
	}
	return &s, nil
}

// Refresh rotates the stored refresh token. A rejected refresh token is
// dropped from the store, so the user has to log in again.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx, "")
}

// refreshLocked rotates unless another caller already replaced staleAccess.
func (c *HTTPClient) refreshLocked(ctx context.Context, staleAccess string) error {
	current, err := c.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if staleAccess != "" && current.AccessToken != staleAccess {
		return nil
	}

	body, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return err
	}
	var pair models.TokenPair
	err = c.do(ctx, request{method: http.MethodPost, path: "/api/auth/refresh", body: body, contentType: "application/json"}, &pair)
	if errors.Is(err, ErrUnauthorized) {
		_ = c.tokens.ClearTokens(ctx)
		return err
	}
	if err != nil {
		return err
	}
	return c.tokens.SaveTokens(ctx, &pair)
}

// Logout revokes the refresh token on the server and always forgets the
// local tokens.
func (c *HTTPClient) Logout(ctx context.Context) error {
	current, err := c.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return err
	}
	serverErr := c.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout", body: body, contentType: "application/json"}, nil)
	if err := c.tokens.ClearTokens(ctx); err != nil {
		return errors.Join(serverErr, err)
	}
	return serverErr
}

func (c *HTTPClient) Me(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/me", auth: true}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) Entitlement(ctx context.Context) (*models.Entitlement, error) {
	var e models.Entitlement
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/entitlement", auth: true}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// TryOn uploads both images as multipart form data and waits for the result.
func (c *HTTPClient) TryOn(ctx context.Context, person, garment Upload) (*models.TryOn, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, u := range map[string]Upload{"person_image": person, "garment_image": garment} {
		part, err := mw.CreateFormFile(field, u.Name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(u.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out models.TryOn
	req := request{method: http.MethodPost, path: "/api/tryon", body: buf.Bytes(), contentType: mw.FormDataContentType(), auth: true}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Outfits(ctx context.Context, body json.RawMessage) (*OutfitsResult, error) {
	var out OutfitsResult
	req := request{method: http.MethodPost, path: "/api/outfits", body: body, contentType: "application/json", auth: true}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches a result image from a presigned URL.
func (c *HTTPClient) Download(ctx context.Context, url string) ([]byte, error) {
	data, err := netx.Download(ctx, c.hc, url, MaxResultSize)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	return data, nil
}

func (c *HTTPClient) do(ctx context.Context, req request, out any) error {
	resp, access, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if req.auth && resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.refreshAfter(ctx, access); err != nil {
			return err
		}
		resp, _, err = c.send(ctx, req)
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

func (c *HTTPClient) refreshAfter(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx, staleAccess)
}

// send performs one attempt and returns the access token it used.
func (c *HTTPClient) send(ctx context.Context, req request) (*http.Response, string, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, "", err
	}
	if req.contentType != "" {
		hr.Header.Set("Content-Type", req.contentType)
	}
	hr.Header.Set("Accept", "application/json")

	var access string
	if req.auth {
		pair, err := c.tokens.Tokens(ctx)
		if err != nil {
			return nil, "", err
		}
		access = pair.AccessToken
		hr.Header.Set(common.AuthorizationHeader, common.BearerScheme+" "+access)
	}

	resp, err := c.hc.Do(hr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, access, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
