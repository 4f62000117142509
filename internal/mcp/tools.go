package mcp

import "github.com/mark3labs/mcp-go/mcp"

var profileToolDef = mcp.NewTool("catalog_profile",
	mcp.WithDescription("Get the store profile (name, owner, contact details, theme). Secrets are never returned."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var listToolDef = mcp.NewTool("catalog_list",
	mcp.WithDescription("List catalog items newest first, optionally filtered by type, sale status or a search term matched against name, year and origin. Photos are omitted."),
	mcp.WithString("type",
		mcp.Description("Item type filter"),
		mcp.Enum("ALL", "COIN", "STAMP"),
	),
	mcp.WithString("status",
		mcp.Description("Sale status filter"),
		mcp.Enum("AVAILABLE", "SOLD"),
	),
	mcp.WithString("query",
		mcp.Description("Search term"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum items to return (default 50, max 500)"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getToolDef = mcp.NewTool("catalog_get",
	mcp.WithDescription("Get one catalog item with its identification and valuation."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Item id"),
	),
	mcp.WithBoolean("include_images",
		mcp.Description("Include the front and back photos as data URLs (large)"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var toggleToolDef = mcp.NewTool("catalog_toggle_status",
	mcp.WithDescription("Flip an item between AVAILABLE and SOLD."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Item id"),
	),
)

var deleteToolDef = mcp.NewTool("catalog_delete",
	mcp.WithDescription("Permanently delete an item. Deleting an unknown id is not an error."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Item id"),
	),
	mcp.WithDestructiveHintAnnotation(true),
)

var setPriceToolDef = mcp.NewTool("catalog_set_price",
	mcp.WithDescription("Set an item's asking price. The price is stored exactly as given."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Item id"),
	),
	mcp.WithString("price",
		mcp.Required(),
		mcp.Description("Asking price in shekels, e.g. \"120\""),
	),
)
