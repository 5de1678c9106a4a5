package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is returned when the remote side answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, e.Body)
}

const maxErrorBody = 512

func (hc *Client) Post(ctx context.Context, url string, body io.Reader, opts ...RequestOption) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}

	hc.applyDefaultHeaders(req)

	for _, opt := range opts {
		opt(req)
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode/100 != 2 {
		text := strings.TrimSpace(string(respBody))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return "", &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: text}
	}

	return string(respBody), nil
}
