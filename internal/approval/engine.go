// Package approval turns human decisions into commits. It is the only
// component allowed to move a proposal out of pending, and an approval
// is strictly all-or-nothing: the version-store commit and the status
// flip happen in one transaction, so a failure in either leaves both
// unapplied.
package approval

import (
	"context"
	"fmt"

	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/logger"
	"github.com/youlab/memvault/internal/proposal"
	"github.com/youlab/memvault/internal/storage"
	"github.com/youlab/memvault/internal/version"
)

// Engine applies approve/reject decisions to pending proposals.
type Engine struct {
	db        *storage.DB
	versions  *version.Store
	proposals *proposal.Store
	blocks    *block.Manager
	log       *logger.Logger
}

// NewEngine wires an approval engine.
func NewEngine(db *storage.DB, versions *version.Store, proposals *proposal.Store, blocks *block.Manager, log *logger.Logger) *Engine {
	return &Engine{
		db:        db,
		versions:  versions,
		proposals: proposals,
		blocks:    blocks,
		log:       log,
	}
}

// Approve applies a pending proposal and returns the id of the commit
// it produced.
//
// Staleness is re-checked against the live content at approval time: if
// the block moved since the proposal was created, the call fails with
// proposal.ErrStale and the proposal stays pending. Approvals only ever
// apply to content the reviewer actually saw — silent rebasing onto
// unreviewed content is forbidden.
func (e *Engine) Approve(ctx context.Context, proposalID, reviewer string) (string, error) {
	p, err := e.proposals.Get(ctx, proposalID)
	if err != nil {
		return "", err
	}
	if p.Status != proposal.StatusPending {
		return "", fmt.Errorf("approval: approve %s: status is %s: %w", p.ID, p.Status, proposal.ErrNotPending)
	}

	live, err := e.blocks.FieldValue(ctx, p.UserID, p.BlockLabel, p.Field)
	if err != nil {
		return "", err
	}
	if live != p.CurrentValue {
		return "", fmt.Errorf("approval: approve %s: content moved since proposal: %w", p.ID, proposal.ErrStale)
	}

	currentBody, err := e.blocks.CurrentBody(ctx, p.UserID, p.BlockLabel)
	if err != nil {
		return "", err
	}
	newBody, err := e.applyOperation(p, currentBody, live)
	if err != nil {
		return "", err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return "", fmt.Errorf("approval: approve %s: %w", p.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	author := block.AgentAuthor(p.AgentID)
	message := fmt.Sprintf("Apply proposal %s: %s", shortID(p.ID), p.Reasoning)

	commitID, err := e.versions.WriteTx(ctx, tx, p.UserID, p.BlockLabel, newBody, string(author), message)
	if err != nil {
		return "", err
	}
	if err := e.proposals.MarkStatusTx(ctx, tx, p.ID, proposal.StatusApproved, commitID, reviewer, ""); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("approval: approve %s: %w", p.ID, storage.Unavailable(err))
	}

	e.log.Info("proposal approved",
		"proposal_id", p.ID,
		"user_id", p.UserID,
		"block_label", p.BlockLabel,
		"commit_id", commitID,
		"reviewer", reviewer,
	)
	e.blocks.Committed(ctx, p.UserID, p.BlockLabel, newBody)
	return commitID, nil
}

// Reject resolves a pending proposal without changing any content. No
// sync notification is sent. Rejecting an already-resolved proposal
// fails with proposal.ErrAlreadyResolved.
func (e *Engine) Reject(ctx context.Context, proposalID, reviewer, reason string) error {
	// Get applies lazy TTL expiry before we look at the status.
	p, err := e.proposals.Get(ctx, proposalID)
	if err != nil {
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("approval: reject %s: %w", p.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := e.proposals.MarkStatusTx(ctx, tx, p.ID, proposal.StatusRejected, "", reviewer, reason); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("approval: reject %s: %w", p.ID, storage.Unavailable(err))
	}

	e.log.Info("proposal rejected",
		"proposal_id", p.ID,
		"user_id", p.UserID,
		"block_label", p.BlockLabel,
		"reviewer", reviewer,
	)
	return nil
}

// applyOperation computes the new block body from the proposal's
// operation, the full current body, and the live value of the target
// (field section or whole body).
func (e *Engine) applyOperation(p *proposal.Proposal, currentBody, liveTarget string) (string, error) {
	switch p.Operation {
	case proposal.OpAppend:
		combined := p.ProposedValue
		if liveTarget != "" {
			combined = liveTarget + "\n\n" + p.ProposedValue
		}
		if p.Field == "" {
			return combined, nil
		}
		sch, ok := e.blocks.Registry().Lookup(p.BlockLabel)
		if !ok {
			return "", fmt.Errorf("approval: %s/%s is freeform: field %q: %w", p.UserID, p.BlockLabel, p.Field, block.ErrUnknownField)
		}
		return block.ReplaceSection(currentBody, sch, p.Field, combined)

	case proposal.OpReplace:
		sch, ok := e.blocks.Registry().Lookup(p.BlockLabel)
		if !ok {
			return "", fmt.Errorf("approval: %s/%s is freeform: field %q: %w", p.UserID, p.BlockLabel, p.Field, block.ErrUnknownField)
		}
		return block.ReplaceSection(currentBody, sch, p.Field, p.ProposedValue)

	case proposal.OpFullReplace, proposal.OpLLMDiff:
		// llm_diff documents that the value came from an upstream
		// LLM-assisted merge; it applies exactly like full_replace.
		return p.ProposedValue, nil
	}
	return "", fmt.Errorf("approval: unhandled operation %q", p.Operation)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
