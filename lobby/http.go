package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/automoto/kitchen-mp/shared/directory"
)

// api is a JSON client for the directory service. Every request carries the
// local player id.
type api struct {
	baseURL  string
	playerID string
	client   *http.Client
}

func newAPI(baseURL, playerID string, client *http.Client) api {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return api{baseURL: baseURL, playerID: playerID, client: client}
}

func (a api) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.playerID != "" {
		req.Header.Set(directory.PlayerHeader, a.playerID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var e directory.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %w", method, path, statusError(resp.StatusCode, e.Error))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// statusError maps a directory status code back to its sentinel.
func statusError(code int, msg string) error {
	var base error
	switch code {
	case http.StatusNotFound:
		base = directory.ErrNotFound
	case http.StatusConflict:
		base = directory.ErrFull
	case http.StatusForbidden, http.StatusUnauthorized:
		base = directory.ErrForbidden
	case http.StatusBadRequest:
		base = directory.ErrBadRequest
	default:
		return fmt.Errorf("unexpected status: %d %s", code, msg)
	}
	if msg == "" || msg == base.Error() {
		return base
	}
	return fmt.Errorf("%w (%s)", base, msg)
}
