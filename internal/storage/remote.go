package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
)

// RemoteBackend talks to the REST API served by `vitrine serve`.
// Ordering of the item list is the server's.
type RemoteBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRemoteBackend creates a client for the API rooted at baseURL
// (e.g. http://127.0.0.1:8080/api). A nil client uses http.DefaultClient.
func NewRemoteBackend(baseURL, token string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: client,
	}
}

func (b *RemoteBackend) Name() string { return EngineRemote }

func (b *RemoteBackend) GetProfile(ctx context.Context) (*catalog.Profile, error) {
	var p *catalog.Profile
	if err := b.doJSON(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *RemoteBackend) SaveProfile(ctx context.Context, p catalog.Profile) error {
	return b.doJSON(ctx, http.MethodPost, "/profile", p, nil)
}

func (b *RemoteBackend) GetItems(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	if err := b.doJSON(ctx, http.MethodGet, "/items", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]catalog.Item, 0)
	}
	return items, nil
}

func (b *RemoteBackend) SaveItem(ctx context.Context, item catalog.Item) error {
	return b.doJSON(ctx, http.MethodPost, "/items", item, nil)
}

func (b *RemoteBackend) DeleteItem(ctx context.Context, id string) error {
	return b.doJSON(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil)
}

func (b *RemoteBackend) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		if code := gjson.GetBytes(raw, "error.code").String(); code != "" {
			return &errors.VitrineError{
				Code:    errors.ErrorCode(code),
				Status:  resp.StatusCode,
				Message: errorMessage(raw),
			}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, errorMessage(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage pulls a readable message out of an error body, which is
// either the API's structured error or arbitrary text from a proxy.
func errorMessage(raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "error", "message"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}
