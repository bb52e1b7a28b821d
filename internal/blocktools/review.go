package blocktools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/approval"
)

// ApproveTool handles the proposal_approve MCP tool.
type ApproveTool struct {
	engine *approval.Engine
}

// NewApproveTool creates an ApproveTool.
func NewApproveTool(engine *approval.Engine) *ApproveTool {
	return &ApproveTool{engine: engine}
}

// Definition returns the MCP tool definition for proposal_approve.
func (t *ApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("proposal_approve",
		mcp.WithDescription(
			"Approve a pending proposal, applying it as a new commit on the block. "+
				"Fails if the block's content moved since the proposal was created — "+
				"approvals only ever apply to content the reviewer actually saw.",
		),
		mcp.WithString("proposal_id",
			mcp.Required(),
			mcp.Description("The proposal to approve"),
		),
		mcp.WithString("reviewer",
			mcp.Required(),
			mcp.Description("Who is approving (recorded on the proposal)"),
		),
	)
}

// Handle processes the proposal_approve tool call.
func (t *ApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposalID := req.GetString("proposal_id", "")
	reviewer := req.GetString("reviewer", "")
	if proposalID == "" {
		return mcp.NewToolResultError("'proposal_id' is required"), nil
	}
	if reviewer == "" {
		return mcp.NewToolResultError("'reviewer' is required"), nil
	}

	commitID, err := t.engine.Approve(ctx, proposalID, reviewer)
	if err != nil {
		return errResult("proposal_approve", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Proposal %s approved. Commit: %s", proposalID, commitID)), nil
}

// ─── RejectTool ──────────────────────────────────────────────────────────────

// RejectTool handles the proposal_reject MCP tool.
type RejectTool struct {
	engine *approval.Engine
}

// NewRejectTool creates a RejectTool.
func NewRejectTool(engine *approval.Engine) *RejectTool {
	return &RejectTool{engine: engine}
}

// Definition returns the MCP tool definition for proposal_reject.
func (t *RejectTool) Definition() mcp.Tool {
	return mcp.NewTool("proposal_reject",
		mcp.WithDescription(
			"Reject a pending proposal. No content changes and the agent runtime is not notified.",
		),
		mcp.WithString("proposal_id",
			mcp.Required(),
			mcp.Description("The proposal to reject"),
		),
		mcp.WithString("reviewer",
			mcp.Required(),
			mcp.Description("Who is rejecting (recorded on the proposal)"),
		),
		mcp.WithString("reason",
			mcp.Description("Optional note explaining the rejection"),
		),
	)
}

// Handle processes the proposal_reject tool call.
func (t *RejectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposalID := req.GetString("proposal_id", "")
	reviewer := req.GetString("reviewer", "")
	if proposalID == "" {
		return mcp.NewToolResultError("'proposal_id' is required"), nil
	}
	if reviewer == "" {
		return mcp.NewToolResultError("'reviewer' is required"), nil
	}

	if err := t.engine.Reject(ctx, proposalID, reviewer, req.GetString("reason", "")); err != nil {
		return errResult("proposal_reject", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Proposal %s rejected.", proposalID)), nil
}
