package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"boohpay/internal/retry"
)

const defaultHTTPTimeout = 30 * time.Second

// jsonClient sends JSON requests through retry.Do and turns non-2xx answers into *HTTPError.
type jsonClient struct {
	provider string
	client   *http.Client
	retry    retry.Options
}

func newJSONClient(provider string, client *http.Client, opts retry.Options) *jsonClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &jsonClient{provider: provider, client: client, retry: opts}
}

// do sends body as JSON and decodes a 2xx response into out (when out is non-nil).
// The returned status is the last HTTP status seen.
func (c *jsonClient) do(ctx context.Context, method, url string, header http.Header, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%s: encode request: %w", c.provider, err)
		}
		payload = b
	}
	return retry.Do(ctx, func(ctx context.Context) (int, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, &retry.TransientNetworkError{Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, newHTTPError(c.provider, resp.StatusCode, raw)
		}
		if out != nil && len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("%s: decode response: %w", c.provider, err)
			}
		}
		return resp.StatusCode, nil
	}, c.retry)
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// stringifyMetadata flattens metadata values to strings, JSON-encoding anything that is not already one.
func stringifyMetadata(dst map[string]string, src map[string]any) map[string]string {
	if dst == nil {
		dst = map[string]string{}
	}
	for k, v := range src {
		switch s := v.(type) {
		case string:
			dst[k] = s
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			dst[k] = string(b)
		}
	}
	return dst
}

func metaString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
