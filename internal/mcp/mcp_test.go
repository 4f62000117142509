package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/config"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/storage"
)

// testSetup creates a facade over a temporary local store.
func testSetup(t *testing.T) *storage.Facade {
	t.Helper()
	backend, err := storage.NewLocalBackend(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return storage.NewFacade(backend, nil)
}

func seed(t *testing.T, f *storage.Facade, items ...catalog.Item) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, f.SaveItem(context.Background(), item))
	}
}

func coin(id, name string, createdAt int64) catalog.Item {
	return catalog.Item{
		ID:         id,
		Type:       catalog.ItemTypeCoin,
		FrontImage: "data:image/png;base64,AAAA",
		BackImage:  "data:image/png;base64,BBBB",
		Analysis:   &catalog.Analysis{ItemName: name, Year: "1980", Origin: "ישראל", Anomalies: []string{}},
		UserPrice:  "100",
		CreatedAt:  createdAt,
	}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON decodes the text payload of a tool result.
func resultJSON(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Content)
	text, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", r.Content[0])
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func errorCode(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if !r.IsError {
		t.Fatalf("expected IsError=true")
	}
	errObj := resultJSON(t, r)["error"].(map[string]any)
	return errObj["code"].(string)
}

func TestHandleProfile(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()

	r, err := h.HandleProfile(ctx, makeRequest(nil))
	require.NoError(t, err)
	payload := resultJSON(t, r)
	assert.Equal(t, false, payload["configured"])
	assert.Nil(t, payload["profile"])

	require.NoError(t, f.SaveProfile(ctx, catalog.Profile{
		StoreName: "חנות",
		Password:  "x",
		APIKey:    "secret-key",
	}))
	r, err = h.HandleProfile(ctx, makeRequest(nil))
	require.NoError(t, err)
	payload = resultJSON(t, r)
	assert.Equal(t, true, payload["configured"])
	assert.Equal(t, true, payload["has_credential"])
	profile := payload["profile"].(map[string]any)
	assert.Equal(t, "חנות", profile["storeName"])
	assert.NotContains(t, profile, "password")
	assert.NotContains(t, profile, "apiKey")
}

func TestHandleList(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()

	sold := coin("c", "לירה", 3000)
	sold.Status = catalog.StatusSold
	stamp := coin("s", "בול העצמאות", 2000)
	stamp.Type = catalog.ItemTypeStamp
	seed(t, f, coin("a", "פרוטה", 1000), stamp, sold)

	tests := []struct {
		name    string
		args    map[string]any
		wantIDs []string
	}{
		{"all, sold last", nil, []string{"s", "a", "c"}},
		{"type filter", map[string]any{"type": "STAMP"}, []string{"s"}},
		{"status filter", map[string]any{"status": "AVAILABLE"}, []string{"s", "a"}},
		{"query", map[string]any{"query": "פרוטה"}, []string{"a"}},
		{"limit", map[string]any{"limit": 1}, []string{"s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := h.HandleList(ctx, makeRequest(tt.args))
			require.NoError(t, err)
			require.False(t, r.IsError)

			payload := resultJSON(t, r)
			items := payload["items"].([]any)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				m := it.(map[string]any)
				ids = append(ids, m["id"].(string))
				assert.NotContains(t, m, "frontImage", "photos are omitted")
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	r, err := h.HandleList(ctx, makeRequest(map[string]any{"status": "LOST"}))
	require.NoError(t, err)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, r))
}

func TestHandleGet(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()
	seed(t, f, coin("a", "פרוטה", 1000))

	r, err := h.HandleGet(ctx, makeRequest(map[string]any{"id": "a"}))
	require.NoError(t, err)
	payload := resultJSON(t, r)
	assert.Equal(t, "a", payload["id"])
	assert.Equal(t, "AVAILABLE", payload["status"])
	assert.Equal(t, "", payload["frontImage"])

	r, err = h.HandleGet(ctx, makeRequest(map[string]any{"id": "a", "include_images": true}))
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", resultJSON(t, r)["frontImage"])

	r, err = h.HandleGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", errorCode(t, r))

	r, err = h.HandleGet(ctx, makeRequest(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, r))
}

func TestHandleToggleStatus_IsInvolution(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()
	seed(t, f, coin("a", "פרוטה", 1000))

	r, err := h.HandleToggleStatus(ctx, makeRequest(map[string]any{"id": "a"}))
	require.NoError(t, err)
	assert.Equal(t, "SOLD", resultJSON(t, r)["status"])

	r, err = h.HandleToggleStatus(ctx, makeRequest(map[string]any{"id": "a"}))
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", resultJSON(t, r)["status"])

	r, err = h.HandleToggleStatus(ctx, makeRequest(map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.Equal(t, "NOT_FOUND", errorCode(t, r))
}

func TestHandleDelete(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()
	seed(t, f, coin("a", "פרוטה", 1000))

	r, err := h.HandleDelete(ctx, makeRequest(map[string]any{"id": "a"}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, r)["deleted"])

	r, err = h.HandleDelete(ctx, makeRequest(map[string]any{"id": "a"}))
	require.NoError(t, err)
	require.False(t, r.IsError, "deleting an unknown id is not an error")
	assert.Equal(t, false, resultJSON(t, r)["deleted"])

	items, err := f.GetItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHandleSetPrice(t *testing.T) {
	f := testSetup(t)
	h := NewHandlers(f)
	ctx := context.Background()
	seed(t, f, coin("a", "פרוטה", 1000))

	r, err := h.HandleSetPrice(ctx, makeRequest(map[string]any{"id": "a", "price": " 250 "}))
	require.NoError(t, err)
	assert.Equal(t, "250", resultJSON(t, r)["price"])

	item, ok, err := f.FindItem(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "250", item.UserPrice)
	assert.Equal(t, int64(1000), item.CreatedAt, "creation time kept")
	assert.Equal(t, "data:image/png;base64,AAAA", item.FrontImage, "photos kept")

	r, err = h.HandleSetPrice(ctx, makeRequest(map[string]any{"id": "a", "price": ""}))
	require.NoError(t, err)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, r))

	r, err = h.HandleSetPrice(ctx, makeRequest(map[string]any{"id": "a", "price": 12}))
	require.NoError(t, err)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, r), "price must be a string")
}

func TestServerRegistration(t *testing.T) {
	s := NewServer(testSetup(t), config.DefaultConfig(), "test")
	tools := s.ListTools()

	expected := AllToolNames()
	sort.Strings(expected)
	assert.Equal(t, []string{
		"catalog_delete",
		"catalog_get",
		"catalog_list",
		"catalog_profile",
		"catalog_set_price",
		"catalog_toggle_status",
	}, expected)

	if len(tools) != len(expected) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expected))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"catalog_delete", "catalog_set_price"}

	tools := NewServer(testSetup(t), cfg, "test").ListTools()
	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range cfg.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %s is registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"catalog_list", "inventory_export", "nope"})
	assert.Equal(t, []string{"inventory_export", "nope"}, unknown)
	assert.Empty(t, ValidateDisabledTools(nil))
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /home/shop/store.json: permission denied")))
	require.True(t, r.IsError)

	errObj := resultJSON(t, r)["error"].(map[string]any)
	assert.Equal(t, string(errors.ErrInternal), errObj["code"])
	assert.NotContains(t, errObj["message"], "permission denied")
	assert.NotContains(t, errObj, "details")
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("toggle: %w", errors.NewNotFound("abc")))
	errObj := resultJSON(t, r)["error"].(map[string]any)
	assert.Equal(t, string(errors.ErrNotFound), errObj["code"])
	assert.Equal(t, float64(404), errObj["status"])
}

func TestErrorResult_PlainError(t *testing.T) {
	r := errorResult(fmt.Errorf("boom"))
	errObj := resultJSON(t, r)["error"].(map[string]any)
	assert.Equal(t, string(errors.ErrInternal), errObj["code"])
	assert.Equal(t, "an internal error occurred", errObj["message"])
}
