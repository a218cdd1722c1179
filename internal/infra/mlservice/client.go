package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/bryanwahyu/tomvto/internal/domain/inference"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second

	pathPredictAdvanced = "/predict/advanced"
	pathDetectMulti     = "/detect/multi"
	pathModelInfo       = "/model-info"

	// error bodies larger than this are truncated
	maxErrorBody = 1 << 20
)

// Config for the ML service client. HTTPClient is optional.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Python ML service over its JSON contract.
// Safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          20,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		}
	}
	return &Client{baseURL: base, timeout: timeout, http: hc}
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) PredictAdvanced(ctx context.Context, image string) (domain.ClassificationResult, error) {
	var out domain.ClassificationResult
	body := map[string]any{"image": image}
	if err := c.do(ctx, http.MethodPost, pathPredictAdvanced, body, &out); err != nil {
		return domain.ClassificationResult{}, err
	}
	return out, nil
}

func (c *Client) DetectMulti(ctx context.Context, image string, threshold float64) (domain.DetectionResult, error) {
	var out domain.DetectionResult
	body := map[string]any{"image": image, "confidence": threshold}
	if err := c.do(ctx, http.MethodPost, pathDetectMulti, body, &out); err != nil {
		return domain.DetectionResult{}, err
	}
	return out, nil
}

func (c *Client) ModelInfo(ctx context.Context) (domain.ModelInfo, error) {
	var out domain.ModelInfo
	if err := c.do(ctx, http.MethodGet, pathModelInfo, nil, &out); err != nil {
		return domain.ModelInfo{}, err
	}
	return out, nil
}

// Check reports whether the service answers its model-info endpoint.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.ModelInfo(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serviceError(path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a body cut short by the deadline is still an unreachable service
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s %s: %w", domain.ErrServiceUnavailable, method, path, ctx.Err())
		}
		return &domain.ServiceError{
			Endpoint: path,
			Status:   resp.StatusCode,
			Message:  "invalid response body: " + err.Error(),
		}
	}
	return nil
}

// serviceError keeps the upstream {error, details} payload when there is one.
func serviceError(path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &domain.ServiceError{Endpoint: path, Status: resp.StatusCode}

	var payload struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		se.Message = payload.Error
		if len(payload.Details) > 0 && string(payload.Details) != "null" {
			se.Details = payload.Details
		}
		return se
	}
	se.Message = strings.TrimSpace(string(raw))
	return se
}
