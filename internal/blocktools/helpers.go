// Package blocktools implements the MCP tools that expose the block
// store to agent runtimes and review UIs: block reads and direct edits,
// history and restore, and the proposal/approval workflow.
package blocktools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/proposal"
	"github.com/youlab/memvault/internal/version"
)

// intArg extracts an integer argument (JSON numbers arrive as float64).
func intArg(req mcp.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

// errResult maps core errors to actionable tool-result text. Conflict
// errors tell the caller what to do next; the rest surface as-is.
func errResult(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, proposal.ErrStale):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s failed: the block changed since this content was read. Re-read the block and resubmit the proposal. (%v)", op, err))
	case errors.Is(err, proposal.ErrNotPending):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s failed: the proposal is no longer pending (it was approved, rejected, superseded, or expired). (%v)", op, err))
	case errors.Is(err, proposal.ErrAlreadyResolved):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s failed: the proposal was already resolved. (%v)", op, err))
	case errors.Is(err, block.ErrInvalidAuthorForDirectEdit):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s failed: agents cannot edit blocks directly — use propose_edit instead. (%v)", op, err))
	case errors.Is(err, version.ErrBlockNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: block not found. (%v)", op, err))
	case errors.Is(err, version.ErrVersionNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: no such commit for this block. (%v)", op, err))
	case errors.Is(err, proposal.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: proposal not found. (%v)", op, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
	}
}
