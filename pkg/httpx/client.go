package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// QueryInput carries optional query parameters, headers and basic-auth
// credentials for an outbound data request.
type QueryInput struct {
	Params   map[string]string
	Headers  map[string]string
	Username string
	Password string
}

// Fetch performs a GET against a backend data source, applying the query
// input. Non-2xx responses are returned as errors together with the status.
func Fetch(ctx context.Context, client *http.Client, target string, input QueryInput) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid target url: %w", err)
	}
	if len(input.Params) > 0 {
		q := parsed.Query()
		for k, v := range input.Params {
			q.Set(k, v)
		}
		parsed.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}
	if input.Username != "" || input.Password != "" {
		req.SetBasicAuth(input.Username, input.Password)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.StatusCode, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, fmt.Errorf("fetch %s: status %d", parsed.Host, resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

// RequestJSON performs an HTTP request with retry for transient failures.
// Retries apply to transport errors and 5xx responses only.
func RequestJSON(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string, retries int, retryDelay time.Duration) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < retries {
				time.Sleep(retryDelay)
				continue
			}
			return 0, nil, err
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < retries {
				time.Sleep(retryDelay)
				continue
			}
			return 0, nil, readErr
		}
		if resp.StatusCode >= 500 && attempt < retries {
			time.Sleep(retryDelay)
			continue
		}
		return resp.StatusCode, respBody, nil
	}
	return 0, nil, lastErr
}
