package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parsakn/smartlight-client/internal/model"
)

const DefaultBaseURL = "http://localhost:8000"

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return baseURL
}

// Client is the typed SmartLight REST client. Every call goes through
// AuthTransport.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		http: &http.Client{
			Timeout:   timeout,
			Transport: &AuthTransport{Tokens: tokens},
		},
	}
}

// NewClientWithHTTP uses hc as is; callers install AuthTransport themselves.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: normalizeBaseURL(baseURL), http: hc}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	var out model.TokenPair
	err := c.doJSON(ctx, http.MethodPost, "/Account/login/", req, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/Account/register/", req, nil)
}

func (c *Client) Homes(ctx context.Context) ([]model.Home, error) {
	var out []model.Home
	err := c.doJSON(ctx, http.MethodGet, "/Profile/home/", nil, &out)
	return out, err
}

func (c *Client) CreateHome(ctx context.Context, in model.HomeInput) (model.HomeInput, error) {
	var out model.HomeInput
	err := c.doJSON(ctx, http.MethodPost, "/Profile/home/", in, &out)
	return out, err
}

func (c *Client) Rooms(ctx context.Context) ([]model.Room, error) {
	var out []model.Room
	err := c.doJSON(ctx, http.MethodGet, "/Profile/room/", nil, &out)
	return out, err
}

func (c *Client) CreateRoom(ctx context.Context, in model.RoomInput) (model.RoomInput, error) {
	var out model.RoomInput
	err := c.doJSON(ctx, http.MethodPost, "/Profile/room/", in, &out)
	return out, err
}

func (c *Client) Lamps(ctx context.Context) ([]model.Lamp, error) {
	var out []model.Lamp
	err := c.doJSON(ctx, http.MethodGet, "/Profile/lamp/", nil, &out)
	return out, err
}

func (c *Client) CreateLamp(ctx context.Context, in model.LampInput) (model.LampInput, error) {
	var out model.LampInput
	err := c.doJSON(ctx, http.MethodPost, "/Profile/lamp/", in, &out)
	return out, err
}

// SetLampStatus returns the server's representation of the lamp after the
// device confirmed the change. The backend answers 504 when it did not.
func (c *Client) SetLampStatus(ctx context.Context, id int64, status bool) (model.Lamp, error) {
	var out model.Lamp
	path := fmt.Sprintf("/Profile/lamp/%d/status/", id)
	err := c.doJSON(ctx, http.MethodPatch, path, model.LampStatusUpdate{Status: status}, &out)
	return out, err
}

// VoiceCommand uploads a recorded command as the multipart field "audio".
func (c *Client) VoiceCommand(ctx context.Context, filename string, audio io.Reader) (model.VoiceCommandResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("audio", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice/command/", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out model.VoiceCommandResult
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PushURL is the websocket endpoint for lamp updates, authorized by token.
func (c *Client) PushURL(token string) (string, error) {
	return pushURL(c.baseURL, token)
}

func pushURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/light/"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(resp, body)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// RefreshClient calls the token refresh endpoint outside AuthTransport.
type RefreshClient struct {
	baseURL string
	http    *http.Client
}

func NewRefreshClient(baseURL string, timeout time.Duration) *RefreshClient {
	return &RefreshClient{
		baseURL: normalizeBaseURL(baseURL),
		http:    &http.Client{Timeout: timeout},
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

func (c *RefreshClient) RefreshAccess(ctx context.Context, refresh string) (string, error) {
	payload, err := json.Marshal(refreshRequest{Refresh: refresh})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Account/token/refresh/", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "token refresh", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", newStatusError(resp, body)
	}
	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	return out.Access, nil
}
