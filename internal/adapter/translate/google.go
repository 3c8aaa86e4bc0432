package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultEndpoint = "https://translate.googleapis.com/translate_a/single"

// Client translates text through the public Google Translate endpoint.
// No API key is needed; the endpoint splits long input into segments that
// are joined back together here.
type Client struct {
	http     *http.Client
	endpoint string
}

func New() *Client {
	return &Client{http: http.DefaultClient, endpoint: defaultEndpoint}
}

// NewWithEndpoint exists for tests.
func NewWithEndpoint(endpoint string) *Client {
	return &Client{http: http.DefaultClient, endpoint: endpoint}
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", "auto")
	query.Set("tl", targetLang)
	query.Set("dt", "t")
	query.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return "", fmt.Errorf("translate error: status=%d, body=%s", resp.StatusCode, bytes.TrimSpace(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return parseSegments(body)
}

// parseSegments decodes the gtx response shape: a nested array whose first
// element is a list of [translated, original, …] segments.
func parseSegments(body []byte) (string, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return "", fmt.Errorf("translate: unexpected response: %w", err)
	}
	if len(outer) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}

	var segments []json.RawMessage
	if err := json.Unmarshal(outer[0], &segments); err != nil {
		return "", fmt.Errorf("translate: unexpected segment list: %w", err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		var fields []json.RawMessage
		if err := json.Unmarshal(seg, &fields); err != nil || len(fields) == 0 {
			continue
		}
		var translated string
		if err := json.Unmarshal(fields[0], &translated); err != nil {
			continue
		}
		sb.WriteString(translated)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("translate: no translated segments in response")
	}
	return sb.String(), nil
}
