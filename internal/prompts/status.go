package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the memvault-status MCP prompt.
// It instructs the AI to read and present a user's memory state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memvault-status",
		mcp.WithPromptDescription(
			"Show the state of a user's memory blocks: what exists, "+
				"when each block last changed, and how many proposals are waiting.",
		),
		mcp.WithArgument("user_id",
			mcp.ArgumentDescription("The user whose memory to inspect"),
		),
	)
}

// Handle processes the memvault-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	userID := "the user"
	if args := req.Params.Arguments; args != nil {
		if u, ok := args["user_id"]; ok && u != "" {
			userID = u
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Memory status for %s", userID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `block_list` for %s.\n\n"+
						"Then:\n"+
						"1. Show me each block with its title, kind, and last update\n"+
						"2. Flag any block with pending proposals so I know review is needed\n"+
						"3. If a block looks stale or empty, suggest what could go in it",
					userID,
				)),
			},
		},
	}, nil
}
