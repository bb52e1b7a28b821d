package blocktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/proposal"
)

// ProposeTool handles the propose_edit MCP tool — the only way an agent
// may suggest a change to a block.
type ProposeTool struct {
	blocks *block.Manager
}

// NewProposeTool creates a ProposeTool.
func NewProposeTool(blocks *block.Manager) *ProposeTool {
	return &ProposeTool{blocks: blocks}
}

// Definition returns the MCP tool definition for propose_edit.
func (t *ProposeTool) Definition() mcp.Tool {
	return mcp.NewTool("propose_edit",
		mcp.WithDescription(
			"Propose an edit to a memory block. The edit is NOT applied — it becomes a pending "+
				"proposal a human reviewer approves or rejects. Pass the content you read as "+
				"current_value: if the block has moved since, the proposal is rejected as stale "+
				"and you must re-read and resubmit. A newer proposal for the same field "+
				"supersedes your older pending one.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user the block belongs to"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Your agent identifier"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Block label"),
		),
		mcp.WithString("field",
			mcp.Description("Field within a structured block; omit for whole-block edits"),
		),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("How to apply: append, replace (field-scoped), full_replace, or llm_diff"),
		),
		mcp.WithString("current_value",
			mcp.Description("The target content as you last read it (staleness anchor)"),
		),
		mcp.WithString("proposed_value",
			mcp.Required(),
			mcp.Description("The content to apply"),
		),
		mcp.WithString("reasoning",
			mcp.Required(),
			mcp.Description("Human-readable justification shown to the reviewer"),
		),
		mcp.WithString("confidence",
			mcp.Description("Your confidence: low, medium (default), or high"),
		),
	)
}

// Handle processes the propose_edit tool call.
func (t *ProposeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	agentID := req.GetString("agent_id", "")
	label := req.GetString("label", "")
	if userID == "" || agentID == "" || label == "" {
		return mcp.NewToolResultError("'user_id', 'agent_id', and 'label' are required"), nil
	}
	operation := req.GetString("operation", "")
	proposed, ok := req.GetArguments()["proposed_value"].(string)
	if operation == "" || !ok {
		return mcp.NewToolResultError("'operation' and 'proposed_value' are required"), nil
	}
	reasoning := req.GetString("reasoning", "")
	if reasoning == "" {
		return mcp.NewToolResultError("'reasoning' is required"), nil
	}

	prop, err := t.blocks.ProposeEdit(ctx, block.ProposeParams{
		UserID:        userID,
		AgentID:       agentID,
		Label:         label,
		Field:         req.GetString("field", ""),
		Operation:     proposal.Operation(operation),
		CurrentValue:  req.GetString("current_value", ""),
		ProposedValue: proposed,
		Reasoning:     reasoning,
		Confidence:    proposal.Confidence(req.GetString("confidence", "")),
	})
	if err != nil {
		return errResult("propose_edit", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Proposal created and pending review.\nID: %s\nTarget: %s/%s %s\nOperation: %s",
		prop.ID, prop.UserID, prop.BlockLabel, fieldLabel(prop.Field), prop.Operation,
	)), nil
}

// ─── PendingTool ─────────────────────────────────────────────────────────────

// PendingTool handles the proposals_list MCP tool.
type PendingTool struct {
	proposals *proposal.Store
}

// NewPendingTool creates a PendingTool.
func NewPendingTool(proposals *proposal.Store) *PendingTool {
	return &PendingTool{proposals: proposals}
}

// Definition returns the MCP tool definition for proposals_list.
func (t *PendingTool) Definition() mcp.Tool {
	return mcp.NewTool("proposals_list",
		mcp.WithDescription(
			"List pending proposals awaiting review, newest first. Shows the recorded "+
				"current value and the proposed value so a reviewer can see the diff.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user whose proposals to list"),
		),
		mcp.WithString("label",
			mcp.Description("Filter to one block label"),
		),
	)
}

// Handle processes the proposals_list tool call.
func (t *PendingTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("'user_id' is required"), nil
	}

	props, err := t.proposals.ListPending(ctx, userID, req.GetString("label", ""))
	if err != nil {
		return errResult("proposals_list", err), nil
	}
	if len(props) == 0 {
		return mcp.NewToolResultText("No pending proposals."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending proposals:\n\n", len(props))
	for _, p := range props {
		fmt.Fprintf(&b, "[%s] %s/%s %s\n", p.ID, p.UserID, p.BlockLabel, fieldLabel(p.Field))
		fmt.Fprintf(&b, "  by %s (%s confidence) at %s\n", p.AgentID, p.Confidence, p.CreatedAt)
		fmt.Fprintf(&b, "  operation: %s\n", p.Operation)
		fmt.Fprintf(&b, "  reasoning: %s\n", p.Reasoning)
		fmt.Fprintf(&b, "  current:  %s\n", truncate(p.CurrentValue, 200))
		fmt.Fprintf(&b, "  proposed: %s\n\n", truncate(p.ProposedValue, 200))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func fieldLabel(field string) string {
	if field == "" {
		return "(whole block)"
	}
	return "field " + field
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
