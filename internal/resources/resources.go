// Package resources implements MCP resource handlers for the block store.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (memvault://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/proposal"
)

// Handler manages memvault resource endpoints.
type Handler struct {
	proposals *proposal.Store
	registry  *block.Registry
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(proposals *proposal.Store, registry *block.Registry) *Handler {
	return &Handler{proposals: proposals, registry: registry}
}

// PendingResource returns the MCP resource definition for the review queue.
func (h *Handler) PendingResource() mcp.Resource {
	return mcp.NewResource(
		"memvault://proposals/pending",
		"Pending Proposals",
		mcp.WithResourceDescription("All agent proposals awaiting human review, across users"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandlePending returns every pending proposal as JSON.
func (h *Handler) HandlePending(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	props, err := h.proposals.ListPending(ctx, "", "")
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling pending proposals: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// SchemasResource returns the MCP resource definition for the schema registry.
func (h *Handler) SchemasResource() mcp.Resource {
	return mcp.NewResource(
		"memvault://schemas",
		"Block Schemas",
		mcp.WithResourceDescription("Registered structured block labels and their fields"),
		mcp.WithMIMEType("application/json"),
	)
}

// schemaEntry is the JSON shape of one registered schema.
type schemaEntry struct {
	Label  string   `json:"label"`
	Title  string   `json:"title,omitempty"`
	Fields []string `json:"fields"`
}

// HandleSchemas returns the registered block schemas as JSON.
func (h *Handler) HandleSchemas(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var entries []schemaEntry
	for _, label := range h.registry.Labels() {
		sch, _ := h.registry.Lookup(label)
		entries = append(entries, schemaEntry{
			Label:  label,
			Title:  sch.Title,
			Fields: sch.Fields,
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling schemas: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
