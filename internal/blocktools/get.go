package blocktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
)

// GetTool handles the block_get MCP tool.
type GetTool struct {
	blocks *block.Manager
}

// NewGetTool creates a GetTool.
func NewGetTool(blocks *block.Manager) *GetTool {
	return &GetTool{blocks: blocks}
}

// Definition returns the MCP tool definition for block_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("block_get",
		mcp.WithDescription(
			"Read the current content of a memory block. Returns the latest committed body, "+
				"the title, and how many agent proposals are pending review for it.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label (e.g. 'student', 'goals')"),
		),
	)
}

// Handle processes the block_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	label := req.GetString("label", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}

	view, err := t.blocks.GetBlock(ctx, userID, label)
	if err != nil {
		return errResult("block_get", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s (%s)\n", view.Title, view.Label)
	if view.UpdatedAt != "" {
		fmt.Fprintf(&b, "Updated: %s\n", view.UpdatedAt)
	}
	fmt.Fprintf(&b, "Pending proposals: %d\n\n", view.PendingDiffCount)
	b.WriteString(view.Body)

	return mcp.NewToolResultText(b.String()), nil
}

// ─── ListTool ────────────────────────────────────────────────────────────────

// ListTool handles the block_list MCP tool.
type ListTool struct {
	blocks *block.Manager
}

// NewListTool creates a ListTool.
func NewListTool(blocks *block.Manager) *ListTool {
	return &ListTool{blocks: blocks}
}

// Definition returns the MCP tool definition for block_list.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("block_list",
		mcp.WithDescription(
			"List all memory blocks for a user: blocks with committed content plus "+
				"registered structured blocks that have none yet.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user whose blocks to list"),
		),
	)
}

// Handle processes the block_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}

	summaries, err := t.blocks.ListBlocks(ctx, userID)
	if err != nil {
		return errResult("block_list", err), nil
	}
	if len(summaries) == 0 {
		return mcp.NewToolResultText("No blocks yet for this user."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d blocks:\n\n", len(summaries))
	for _, s := range summaries {
		kind := "freeform"
		if s.Structured {
			kind = "structured"
		}
		updated := s.UpdatedAt
		if updated == "" {
			updated = "never committed"
		}
		fmt.Fprintf(&b, "- %s (%s, %s) — updated %s, %d pending\n",
			s.Label, s.Title, kind, updated, s.PendingDiffCount)
	}
	return mcp.NewToolResultText(b.String()), nil
}
