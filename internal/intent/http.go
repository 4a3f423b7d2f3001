package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

// StatusError is a non-2xx reply from the intent backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("intent http status %d: %s", e.Code, e.Body)
}

type httpRequest struct {
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// HTTPClient forwards parse and analysis requests to a self-hosted
// endpoint that speaks the same JSON shapes as the Gemini schemas.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ParseCommand(ctx context.Context, transcript, language string) (Command, error) {
	body, err := c.post(ctx, httpRequest{Kind: "command", Text: transcript, Language: language})
	if err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	cmd, err := decodeCommand(body)
	if err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}

func (c *HTTPClient) AnalyzeSymptoms(ctx context.Context, symptoms, language string) (Analysis, error) {
	body, err := c.post(ctx, httpRequest{Kind: "analysis", Text: symptoms, Language: language})
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze symptoms: %w", err)
	}
	a, err := decodeAnalysis(body)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze symptoms: %w", err)
	}
	return a, nil
}

func (c *HTTPClient) post(ctx context.Context, req httpRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: send request: %v", reliability.ErrParse, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("%w: %w", reliability.ErrParse, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", reliability.ErrParse, err)
	}
	return string(body), nil
}

// retryableElsewhere reports whether err from a backend is worth trying
// on another backend.
func retryableElsewhere(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return reliability.IsRetryableHTTPStatus(status.Code)
	}
	return true
}
