package blocktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/version"
)

// HistoryTool handles the block_history MCP tool.
type HistoryTool struct {
	versions *version.Store
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(versions *version.Store) *HistoryTool {
	return &HistoryTool{versions: versions}
}

// Definition returns the MCP tool definition for block_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("block_history",
		mcp.WithDescription(
			"List the commit history of a memory block, most recent first. "+
				"Every edit — direct or approved proposal — is an attributed commit.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum commits to return (default and cap: 100)"),
		),
	)
}

// Handle processes the block_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	label := req.GetString("label", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}
	limit := intArg(req, "limit", 0)

	metas, err := t.versions.History(ctx, userID, label, limit)
	if err != nil {
		return errResult("block_history", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d commits for %q (newest first):\n\n", len(metas), label)
	for _, m := range metas {
		fmt.Fprintf(&b, "%s  #%d  %s  %s\n    %s (%d bytes)\n",
			m.ID, m.Seq, m.CreatedAt, m.Author, m.Message, m.BodyBytes)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── VersionTool ─────────────────────────────────────────────────────────────

// VersionTool handles the block_version MCP tool.
type VersionTool struct {
	versions *version.Store
}

// NewVersionTool creates a VersionTool.
func NewVersionTool(versions *version.Store) *VersionTool {
	return &VersionTool{versions: versions}
}

// Definition returns the MCP tool definition for block_version.
func (t *VersionTool) Definition() mcp.Tool {
	return mcp.NewTool("block_version",
		mcp.WithDescription(
			"Read a memory block's content at a specific historical commit.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label"),
		),
		mcp.WithString("commit_id",
			mcp.Required(),
			mcp.Description("The commit id, as shown by block_history"),
		),
	)
}

// Handle processes the block_version tool call.
func (t *VersionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	label := req.GetString("label", "")
	commitID := req.GetString("commit_id", "")
	if userID == "" || label == "" || commitID == "" {
		return mcp.NewToolResultError("'user_id', 'label', and 'commit_id' are required"), nil
	}

	body, err := t.versions.GetVersion(ctx, userID, label, commitID)
	if err != nil {
		return errResult("block_version", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Content of %q at %s:\n\n%s", label, commitID, body)), nil
}

// ─── RestoreTool ─────────────────────────────────────────────────────────────

// RestoreTool handles the block_restore MCP tool.
type RestoreTool struct {
	versions *version.Store
	blocks   *block.Manager
}

// NewRestoreTool creates a RestoreTool.
func NewRestoreTool(versions *version.Store, blocks *block.Manager) *RestoreTool {
	return &RestoreTool{versions: versions, blocks: blocks}
}

// Definition returns the MCP tool definition for block_restore.
func (t *RestoreTool) Definition() mcp.Tool {
	return mcp.NewTool("block_restore",
		mcp.WithDescription(
			"Restore a memory block to a past commit's content. History is never rewritten: "+
				"this creates a NEW commit carrying the old content forward, and all later "+
				"versions remain retrievable.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label"),
		),
		mcp.WithString("commit_id",
			mcp.Required(),
			mcp.Description("The commit to restore content from"),
		),
		mcp.WithString("author",
			mcp.Description("Commit author: 'user' (default) or 'system'"),
		),
	)
}

// Handle processes the block_restore tool call.
func (t *RestoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	label := req.GetString("label", "")
	commitID := req.GetString("commit_id", "")
	if userID == "" || label == "" || commitID == "" {
		return mcp.NewToolResultError("'user_id', 'label', and 'commit_id' are required"), nil
	}

	author, err := block.ParseAuthor(req.GetString("author", string(block.AuthorUser)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if author.IsAgent() {
		return errResult("block_restore", block.ErrInvalidAuthorForDirectEdit), nil
	}

	newID, err := t.versions.Restore(ctx, userID, label, commitID, string(author))
	if err != nil {
		return errResult("block_restore", err), nil
	}

	// Restore is a commit like any other: refresh cache, notify sync.
	if body, err := t.versions.GetVersion(ctx, userID, label, newID); err == nil {
		t.blocks.Committed(ctx, userID, label, body)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Block %q restored from %s. New commit: %s", label, commitID, newID)), nil
}
