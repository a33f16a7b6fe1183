package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go-lora-manager/internal/config"
	"go-lora-manager/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrUnauthorized  = errors.New("backend request unauthorized")
	ErrNotFound      = errors.New("backend resource not found")
	ErrServerError   = errors.New("backend server error")
	ErrRequestFailed = errors.New("backend request failed")
)

// Client talks to the lora-manager backend. It carries no page state; model-type
// specific operations live on ModelClient.
type Client struct {
	BaseURL    string
	WSBase     string
	HttpClient *http.Client
}

// NewClient creates a client for the backend named in cfg.
func NewClient(cfg models.Config, httpClient *http.Client) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		httpClient = &http.Client{Timeout: timeout}
	}
	log.Debugf("NewClient called for %s", cfg.BaseURL)
	return &Client{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		WSBase:     config.WebSocketBase(cfg),
		HttpClient: httpClient,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON issues a GET and decodes the JSON body into out (when out is non-nil).
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.endpoint(path, query), nil, "", out)
}

// postJSON encodes body as JSON and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, reqURL string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		log.WithError(err).Debugf("%s %s failed", method, reqURL)
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, reqURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if err := statusError(resp.StatusCode, data); err != nil {
		log.WithField("status", resp.StatusCode).Debugf("%s %s: %v", method, reqURL, err)
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Debugf("Response body causing unmarshal error: %s", string(data))
		return fmt.Errorf("error unmarshalling response JSON: %w", err)
	}
	return nil
}

// statusError maps a non-2xx status to a sentinel error. The backend's own error
// message, when the body carries one, is kept in the error text.
func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var sentinel error
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case code == http.StatusNotFound:
		sentinel = ErrNotFound
	case code >= 500:
		sentinel = ErrServerError
	default:
		sentinel = ErrRequestFailed
	}
	if msg := serverMessage(body); msg != "" {
		return fmt.Errorf("%w (status code %d): %s", sentinel, code, msg)
	}
	return fmt.Errorf("%w (status code %d)", sentinel, code)
}

const maxMessageLen = 200

// serverMessage extracts a human readable reason from an error body, cut to at most
// maxMessageLen bytes on a rune boundary.
func serverMessage(body []byte) string {
	var status models.StatusResponse
	if err := json.Unmarshal(body, &status); err == nil {
		if status.Error != "" {
			return status.Error
		}
		if status.Message != "" {
			return status.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
