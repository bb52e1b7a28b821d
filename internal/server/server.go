// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools/prompts/resources that depend on them.
// No business logic lives here — only wiring.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/youlab/memvault/internal/approval"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/blocktools"
	"github.com/youlab/memvault/internal/config"
	"github.com/youlab/memvault/internal/logger"
	"github.com/youlab/memvault/internal/notify"
	"github.com/youlab/memvault/internal/prompts"
	"github.com/youlab/memvault/internal/proposal"
	"github.com/youlab/memvault/internal/resources"
	"github.com/youlab/memvault/internal/storage"
	"github.com/youlab/memvault/internal/version"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. configPath may be empty (defaults plus
// environment apply).
//
// The returned cleanup function stops the background expiry sweep and
// closes the database, and must be called on shutdown (typically via
// defer). It is always non-nil and safe to call.
func New(configPath string) (*server.MCPServer, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, noop, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, noop, fmt.Errorf("creating logger: %w", err)
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Sync()
		return nil, noop, err
	}

	// --- Create the core stores and services ---

	versions := version.NewStore(db, cfg.HistoryCap)
	proposals := proposal.NewStore(db, cfg.ProposalTTL)

	registry := block.NewRegistry(schemasFromConfig(cfg.Schemas))

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
		log.Info("sync notifier: webhook", "url", cfg.WebhookURL)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	blocks, err := block.NewManager(versions, proposals, registry, notifier, log, block.ManagerConfig{
		MaxBodyBytes:    cfg.MaxBodyBytes,
		CacheMaxEntries: cfg.CacheMaxEntries,
	})
	if err != nil {
		_ = db.Close()
		return nil, noop, err
	}

	engine := approval.NewEngine(db, versions, proposals, blocks, log)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"memvault",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register block tools ---

	getTool := blocktools.NewGetTool(blocks)
	s.AddTool(getTool.Definition(), getTool.Handle)

	listTool := blocktools.NewListTool(blocks)
	s.AddTool(listTool.Definition(), listTool.Handle)

	updateTool := blocktools.NewUpdateTool(blocks)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	historyTool := blocktools.NewHistoryTool(versions)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	versionTool := blocktools.NewVersionTool(versions)
	s.AddTool(versionTool.Definition(), versionTool.Handle)

	restoreTool := blocktools.NewRestoreTool(versions, blocks)
	s.AddTool(restoreTool.Definition(), restoreTool.Handle)

	// --- Register proposal workflow tools ---

	proposeTool := blocktools.NewProposeTool(blocks)
	s.AddTool(proposeTool.Definition(), proposeTool.Handle)

	pendingTool := blocktools.NewPendingTool(proposals)
	s.AddTool(pendingTool.Definition(), pendingTool.Handle)

	approveTool := blocktools.NewApproveTool(engine)
	s.AddTool(approveTool.Definition(), approveTool.Handle)

	rejectTool := blocktools.NewRejectTool(engine)
	s.AddTool(rejectTool.Definition(), rejectTool.Handle)

	// --- Register prompts ---

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(proposals, registry)
	s.AddResource(resourceHandler.PendingResource(), resourceHandler.HandlePending)
	s.AddResource(resourceHandler.SchemasResource(), resourceHandler.HandleSchemas)

	// --- Background expiry sweep ---
	//
	// Expiry is evaluated lazily on every read, so the sweep only keeps
	// the proposals table tidy for direct SQL consumers.

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepLoop(sweepCtx, proposals, log, cfg.SweepInterval)

	cleanup := func() {
		stopSweep()
		if err := db.Close(); err != nil {
			log.Warn("database close", "error", err)
		}
		log.Sync()
	}
	return s, cleanup, nil
}

// noop is a no-op cleanup function returned on early failures.
func noop() {}

// sweepLoop periodically expires over-TTL pending proposals.
func sweepLoop(ctx context.Context, proposals *proposal.Store, log *logger.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := proposals.SweepExpired(ctx)
			if err != nil {
				log.Warn("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("expired stale proposals", "count", n)
			}
		}
	}
}

func schemasFromConfig(schemas map[string]config.BlockSchema) map[string]block.Schema {
	out := make(map[string]block.Schema, len(schemas))
	for label, s := range schemas {
		out[label] = block.Schema{Title: s.Title, Fields: s.Fields}
	}
	return out
}

// serverInstructions returns the system instructions that tell the AI
// how to use memvault correctly.
func serverInstructions() string {
	return `memvault is a versioned, approval-gated store for per-user memory blocks.

A block is a named piece of user context (for example "student" or "goals").
Every change is an immutable, attributed commit; history is never rewritten,
and restoring an old version creates a new commit carrying the old content
forward.

## Ground rules

- Agents never edit blocks directly. To change a block, call propose_edit;
  a human reviews the proposal and approves or rejects it.
- Always read a block (block_get) before proposing, and pass exactly what
  you read as current_value. If the block changes before review, your
  proposal fails as stale and you must re-read and resubmit.
- Your newest pending proposal for a field supersedes your older one —
  there is no merging of proposals.
- Humans edit directly with block_update, inspect history with
  block_history / block_version, and undo with block_restore.
- Reviewers work the queue with proposals_list, then proposal_approve or
  proposal_reject. Unreviewed proposals expire after a configured TTL.`
}
