// Package prompts implements MCP prompt handlers for the block store.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the memvault-review MCP prompt.
// It walks a reviewer through the pending proposal queue.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memvault-review",
		mcp.WithPromptDescription(
			"Review pending agent proposals for a user's memory blocks. "+
				"Shows each proposed change as a diff and lets you approve or reject it.",
		),
		mcp.WithArgument("user_id",
			mcp.ArgumentDescription("The user whose proposals to review"),
		),
	)
}

// Handle processes the memvault-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	userID := "the user"
	if args := req.Params.Arguments; args != nil {
		if u, ok := args["user_id"]; ok && u != "" {
			userID = u
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review pending proposals for %s", userID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to review the pending memory proposals for %s.\n\n"+
						"Please:\n"+
						"1. Run `proposals_list` for this user\n"+
						"2. For each proposal, show me the current value and the proposed value side by side, "+
						"with the agent's reasoning and confidence\n"+
						"3. Ask me whether to approve or reject each one, then run `proposal_approve` or "+
						"`proposal_reject` with my decision\n"+
						"4. If an approval fails because the content moved, tell me and move on — the agent "+
						"has to resubmit against the new content\n"+
						"5. Finish with a summary of what was applied",
					userID,
				)),
			},
		},
	}, nil
}
