package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	facade *storage.Facade
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(facade *storage.Facade) *Handlers {
	return &Handlers{facade: facade}
}

// Request types for each tool

// ListRequest represents the arguments for catalog_list.
type ListRequest struct {
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
	Query  string `json:"query,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// GetRequest represents the arguments for catalog_get.
type GetRequest struct {
	ID            string `json:"id"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

// IDRequest represents the arguments for tools addressing one item.
type IDRequest struct {
	ID string `json:"id"`
}

// SetPriceRequest represents the arguments for catalog_set_price.
type SetPriceRequest struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

// ItemSummary is an item without its photos.
type ItemSummary struct {
	ID        string             `json:"id"`
	Type      catalog.ItemType   `json:"type"`
	Status    catalog.ItemStatus `json:"status"`
	Name      string             `json:"name"`
	Year      string             `json:"year,omitempty"`
	Origin    string             `json:"origin,omitempty"`
	Price     string             `json:"price"`
	CreatedAt int64              `json:"created_at"`
}

func summarize(item catalog.Item) ItemSummary {
	a, _ := item.Identification()
	return ItemSummary{
		ID:        item.ID,
		Type:      item.Type,
		Status:    item.CurrentStatus(),
		Name:      item.DisplayName(),
		Year:      a.Year,
		Origin:    a.Origin,
		Price:     item.UserPrice,
		CreatedAt: item.CreatedAt,
	}
}

// Handler implementations

// HandleProfile handles the catalog_profile tool call.
func (h *Handlers) HandleProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.facade.GetProfile(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if p == nil {
		return successResult(map[string]any{"configured": false, "profile": nil})
	}
	return successResult(map[string]any{
		"configured":     !p.NeedsSetup(),
		"has_credential": p.HasCredential(),
		"profile":        p.Redacted(),
	})
}

// HandleList handles the catalog_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var status catalog.ItemStatus
	if input.Status != "" {
		if status, err = catalog.ParseItemStatus(input.Status); err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
	}
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	items, err := h.facade.GetItems(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	matched := catalog.Storefront(items, catalog.Query{
		Search: input.Query,
		Type:   catalog.ParseTypeFilter(input.Type),
	})

	out := make([]ItemSummary, 0, len(matched))
	for _, item := range matched {
		if status != "" && item.CurrentStatus() != status {
			continue
		}
		out = append(out, summarize(item))
	}
	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}

	return successResult(map[string]any{
		"items": out,
		"total": total,
	})
}

// HandleGet handles the catalog_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	item, err := h.find(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if !input.IncludeImages {
		item.FrontImage = ""
		item.BackImage = ""
	}
	return successResult(item.Normalized())
}

// HandleToggleStatus handles the catalog_toggle_status tool call.
func (h *Handlers) HandleToggleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.ID) == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}
	item, err := h.facade.ToggleStatus(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(summarize(item))
}

// HandleDelete handles the catalog_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.ID) == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}
	_, existed, err := h.facade.FindItem(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.facade.DeleteItem(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": existed})
}

// HandleSetPrice handles the catalog_set_price tool call.
func (h *Handlers) HandleSetPrice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetPriceRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	price := strings.TrimSpace(input.Price)
	if price == "" {
		return errorResult(errors.NewInvalidRequest("price is required")), nil
	}
	item, err := h.find(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	item.UserPrice = price
	if err := h.facade.SaveItem(ctx, item); err != nil {
		return errorResult(err), nil
	}
	return successResult(summarize(item))
}

func (h *Handlers) find(ctx context.Context, id string) (catalog.Item, error) {
	if strings.TrimSpace(id) == "" {
		return catalog.Item{}, errors.NewInvalidRequest("id is required")
	}
	item, ok, err := h.facade.FindItem(ctx, id)
	if err != nil {
		return catalog.Item{}, err
	}
	if !ok {
		return catalog.Item{}, errors.NewNotFound(id)
	}
	return item, nil
}

// decode unmarshals MCP request arguments into a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if vErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    vErr.Code,
			"message": vErr.Message,
			"status":  vErr.Status,
		}
		if vErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if vErr.Details != nil {
			errorObj["details"] = vErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
