package blocktools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
)

// UpdateTool handles the block_update MCP tool — the direct, human-only
// edit path. Agent edits are rejected here and must go through
// propose_edit.
type UpdateTool struct {
	blocks *block.Manager
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(blocks *block.Manager) *UpdateTool {
	return &UpdateTool{blocks: blocks}
}

// Definition returns the MCP tool definition for block_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("block_update",
		mcp.WithDescription(
			"Directly edit a memory block's content. Reserved for human-originated edits "+
				"(author 'user' or 'system'); agent edits must go through propose_edit and review.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("The new full body of the block (markdown)"),
		),
		mcp.WithString("author",
			mcp.Description("Commit author: 'user' (default) or 'system'"),
		),
		mcp.WithString("message",
			mcp.Description("Commit message (default: 'Direct edit')"),
		),
	)
}

// Handle processes the block_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	label := req.GetString("label", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}
	body, ok := req.GetArguments()["body"].(string)
	if !ok {
		return mcp.NewToolResultError("'body' is required"), nil
	}

	author, err := block.ParseAuthor(req.GetString("author", string(block.AuthorUser)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message := req.GetString("message", "")

	commitID, err := t.blocks.UpdateBlock(ctx, userID, label, body, author, message)
	if err != nil {
		return errResult("block_update", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Block %q updated. Commit: %s", label, commitID)), nil
}
