package replicate

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

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Client renders images through the Replicate predictions API. One call is
// one prediction: created with the wait preference and polled until terminal
// if the API hands it back still processing.
type Client struct {
	http         *http.Client
	baseURL      string
	token        string
	pollInterval time.Duration
	logger       *zap.SugaredLogger
}

func New(token string, logger *zap.SugaredLogger) *Client {
	return &Client{
		http:         http.DefaultClient,
		baseURL:      defaultBaseURL,
		token:        token,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

// NewWithBaseURL exists for tests.
func NewWithBaseURL(baseURL, token string, logger *zap.SugaredLogger) *Client {
	c := New(token, logger)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.pollInterval = 10 * time.Millisecond
	return c
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Generate runs the model once for the prompt and returns the bytes of the
// first output image.
func (c *Client) Generate(ctx context.Context, model, prompt string) ([]byte, error) {
	if strings.TrimSpace(c.token) == "" {
		return nil, errors.New("replicate: empty API token (set REPLICATE_API)")
	}
	if !strings.Contains(model, "/") {
		return nil, fmt.Errorf("replicate: model %q is not owner/name", model)
	}

	pred, err := c.create(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	for !terminal(pred.Status) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		pred, err = c.get(ctx, pred)
		if err != nil {
			return nil, err
		}
	}

	if pred.Status != "succeeded" {
		msg := pred.Status
		if pred.Error != nil && *pred.Error != "" {
			msg = *pred.Error
		}
		return nil, fmt.Errorf("replicate: prediction failed: %s", msg)
	}

	outputURL, err := firstOutputURL(pred.Output)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, outputURL)
}

func (c *Client) create(ctx context.Context, model, prompt string) (*prediction, error) {
	payload, err := json.Marshal(map[string]any{
		"input": map[string]string{"prompt": prompt},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	// Ask the API to hold the connection until the prediction finishes.
	req.Header.Set("Prefer", "wait")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, pred *prediction) (*prediction, error) {
	endpoint := pred.URLs.Get
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/predictions/%s", c.baseURL, pred.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*prediction, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return nil, fmt.Errorf("replicate error: status=%d, body=%s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	c.logger.Debugw("Replicate call", "status", pred.Status, "duration", time.Since(start).String())
	return &pred, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("replicate: fetch output: status=%d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

// firstOutputURL handles both output shapes the API produces: a list of URLs
// or a single URL string.
func firstOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", errors.New("replicate: prediction has no output")
	}
	var urls []string
	if err := json.Unmarshal(output, &urls); err == nil {
		if len(urls) == 0 || urls[0] == "" {
			return "", errors.New("replicate: prediction output is empty")
		}
		return urls[0], nil
	}
	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}
	return "", errors.New("replicate: unrecognized prediction output")
}
