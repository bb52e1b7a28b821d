// Package block is the block-level API surface: what agents, the review
// UI, and the sync layer actually call. It wraps the version store with
// the notion of "current" content, registered schemas, pending-diff
// counts, and the hard rule that agent-originated edits go through the
// proposal path while human edits commit directly.
package block

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/ristretto"
	"github.com/youlab/memvault/internal/logger"
	"github.com/youlab/memvault/internal/notify"
	"github.com/youlab/memvault/internal/proposal"
	"github.com/youlab/memvault/internal/version"
)

var (
	// ErrBodyTooLarge is returned when a body or proposed value exceeds
	// the configured size bound.
	ErrBodyTooLarge = errors.New("body too large")

	// ErrOperationNotAllowed is returned when an operation does not fit
	// the block's kind: field-scoped edits on freeform blocks, replace
	// without a field, and the like.
	ErrOperationNotAllowed = errors.New("operation not allowed for this block")
)

// BlockView is the full read model for one block.
type BlockView struct {
	Label            string `json:"label"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	UpdatedAt        string `json:"updated_at,omitempty"`
	PendingDiffCount int    `json:"pending_diff_count"`
}

// BlockSummary is the listing row for a block.
type BlockSummary struct {
	Label            string `json:"label"`
	Title            string `json:"title"`
	UpdatedAt        string `json:"updated_at,omitempty"`
	PendingDiffCount int    `json:"pending_diff_count"`
	Structured       bool   `json:"structured"`
}

// ManagerConfig holds manager tunables.
type ManagerConfig struct {
	MaxBodyBytes    int
	CacheMaxEntries int64
}

// cachedHead is the cache entry for a block's latest commit.
type cachedHead struct {
	Body      string
	UpdatedAt string
}

// Manager mediates all block reads and writes.
type Manager struct {
	versions  *version.Store
	proposals *proposal.Store
	registry  *Registry
	notifier  notify.Notifier
	cache     *ristretto.Cache
	log       *logger.Logger
	maxBody   int
}

// NewManager wires a Manager. The ristretto cache fronts head-commit
// reads; proposal counts are always read live.
func NewManager(versions *version.Store, proposals *proposal.Store, registry *Registry, notifier notify.Notifier, log *logger.Logger, cfg ManagerConfig) (*Manager, error) {
	entries := cfg.CacheMaxEntries
	if entries <= 0 {
		entries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("block: create cache: %w", err)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}

	return &Manager{
		versions:  versions,
		proposals: proposals,
		registry:  registry,
		notifier:  notifier,
		cache:     cache,
		log:       log,
		maxBody:   maxBody,
	}, nil
}

// Registry exposes the schema registry to collaborating components.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetBlock returns the current view of a block: latest committed body
// (or the schema scaffold for a registered block with no commits yet),
// title, and the number of pending proposals awaiting review.
func (m *Manager) GetBlock(ctx context.Context, userID, label string) (BlockView, error) {
	head, found, err := m.head(ctx, userID, label)
	if err != nil {
		return BlockView{}, err
	}

	sch, registered := m.registry.Lookup(label)
	if !found {
		if !registered {
			return BlockView{}, fmt.Errorf("block: get %s/%s: %w", userID, label, version.ErrBlockNotFound)
		}
		head = cachedHead{Body: sch.Scaffold()}
	}

	count, err := m.proposals.CountPending(ctx, userID, label)
	if err != nil {
		return BlockView{}, err
	}

	return BlockView{
		Label:            label,
		Title:            m.title(label),
		Body:             head.Body,
		UpdatedAt:        head.UpdatedAt,
		PendingDiffCount: count,
	}, nil
}

// ListBlocks enumerates every block the user has: labels with at least
// one commit plus registered labels that have none yet.
func (m *Manager) ListBlocks(ctx context.Context, userID string) ([]BlockSummary, error) {
	committed, err := m.versions.Labels(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var labels []string
	for _, l := range committed {
		seen[l] = true
		labels = append(labels, l)
	}
	for _, l := range m.registry.Labels() {
		if !seen[l] {
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)

	summaries := make([]BlockSummary, 0, len(labels))
	for _, l := range labels {
		head, found, err := m.head(ctx, userID, l)
		if err != nil {
			return nil, err
		}
		count, err := m.proposals.CountPending(ctx, userID, l)
		if err != nil {
			return nil, err
		}
		_, structured := m.registry.Lookup(l)
		summary := BlockSummary{
			Label:            l,
			Title:            m.title(l),
			PendingDiffCount: count,
			Structured:       structured,
		}
		if found {
			summary.UpdatedAt = head.UpdatedAt
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UpdateBlock is the direct edit path, reserved for human-originated
// writes. Agent authors are rejected here — agents propose, humans
// commit. A successful update refreshes the cache and triggers the
// best-effort sync notification.
func (m *Manager) UpdateBlock(ctx context.Context, userID, label, body string, author Author, message string) (string, error) {
	if !author.Valid() {
		return "", fmt.Errorf("block: update %s/%s: invalid author %q", userID, label, author)
	}
	if author.IsAgent() {
		return "", fmt.Errorf("block: update %s/%s by %s: %w", userID, label, author, ErrInvalidAuthorForDirectEdit)
	}
	if len(body) > m.maxBody {
		return "", fmt.Errorf("block: update %s/%s: %d bytes: %w", userID, label, len(body), ErrBodyTooLarge)
	}
	if message == "" {
		message = "Direct edit"
	}

	id, err := m.versions.Write(ctx, userID, label, body, string(author), message)
	if err != nil {
		return "", err
	}
	m.Committed(ctx, userID, label, body)
	return id, nil
}

// ProposeParams is the input for ProposeEdit.
type ProposeParams struct {
	UserID        string
	AgentID       string
	Label         string
	Field         string
	Operation     proposal.Operation
	CurrentValue  string
	ProposedValue string
	Reasoning     string
	Confidence    proposal.Confidence
}

// ProposeEdit validates an agent's suggestion against the block's kind
// and live content, then records it as a pending proposal. A mismatch
// between CurrentValue and the live value fails with proposal.ErrStale:
// the agent must re-read and resubmit.
func (m *Manager) ProposeEdit(ctx context.Context, p ProposeParams) (*proposal.Proposal, error) {
	if p.AgentID == "" {
		return nil, fmt.Errorf("block: propose on %s/%s: agent id is required", p.UserID, p.Label)
	}
	if err := proposal.ValidateOperation(p.Operation); err != nil {
		return nil, fmt.Errorf("block: propose on %s/%s: %w", p.UserID, p.Label, err)
	}
	if len(p.ProposedValue) > m.maxBody {
		return nil, fmt.Errorf("block: propose on %s/%s: %d bytes: %w", p.UserID, p.Label, len(p.ProposedValue), ErrBodyTooLarge)
	}

	sch, registered := m.registry.Lookup(p.Label)
	if p.Field != "" {
		if !registered {
			return nil, fmt.Errorf("block: propose on %s/%s: freeform blocks take no field: %w", p.UserID, p.Label, ErrOperationNotAllowed)
		}
		if !sch.HasField(p.Field) {
			return nil, fmt.Errorf("block: propose on %s/%s: field %q: %w", p.UserID, p.Label, p.Field, ErrUnknownField)
		}
	}
	if p.Operation == proposal.OpReplace && p.Field == "" {
		return nil, fmt.Errorf("block: propose on %s/%s: replace requires a field: %w", p.UserID, p.Label, ErrOperationNotAllowed)
	}

	live, err := m.FieldValue(ctx, p.UserID, p.Label, p.Field)
	if err != nil {
		return nil, err
	}
	if live != p.CurrentValue {
		return nil, fmt.Errorf("block: propose on %s/%s: content moved since read: %w", p.UserID, p.Label, proposal.ErrStale)
	}

	return m.proposals.Create(ctx, proposal.CreateParams{
		UserID:        p.UserID,
		AgentID:       p.AgentID,
		BlockLabel:    p.Label,
		Field:         p.Field,
		Operation:     p.Operation,
		CurrentValue:  p.CurrentValue,
		ProposedValue: p.ProposedValue,
		Reasoning:     p.Reasoning,
		Confidence:    p.Confidence,
	})
}

// CurrentBody returns the live full body of a block: the head commit,
// the scaffold for a committed-free registered block, or "" for a block
// that does not exist yet (blocks are created implicitly on first write).
func (m *Manager) CurrentBody(ctx context.Context, userID, label string) (string, error) {
	head, found, err := m.head(ctx, userID, label)
	if err != nil {
		return "", err
	}
	if found {
		return head.Body, nil
	}
	if sch, ok := m.registry.Lookup(label); ok {
		return sch.Scaffold(), nil
	}
	return "", nil
}

// FieldValue returns the live value a proposal targets: the named
// field's section for structured blocks, or the whole body when field
// is empty. This is the staleness anchor for the approval workflow.
func (m *Manager) FieldValue(ctx context.Context, userID, label, field string) (string, error) {
	body, err := m.CurrentBody(ctx, userID, label)
	if err != nil {
		return "", err
	}
	if field == "" {
		return body, nil
	}

	sch, registered := m.registry.Lookup(label)
	if !registered {
		return "", fmt.Errorf("block: %s/%s is freeform: field %q: %w", userID, label, field, ErrUnknownField)
	}
	value, err := SectionValue(body, sch, field)
	if err != nil {
		return "", fmt.Errorf("block: %s/%s: %w", userID, label, err)
	}
	return value, nil
}

// Committed runs the post-commit side effects: cache refresh and the
// best-effort sync notification. Notification failures are logged and
// never propagate — the version store is the source of truth.
func (m *Manager) Committed(ctx context.Context, userID, label, body string) {
	// Evict rather than overwrite: the next read pulls the
	// authoritative row with its commit timestamp.
	m.cache.Del(cacheKey(userID, label))
	m.cache.Wait()

	if err := m.notifier.Notify(ctx, userID, label, body); err != nil {
		m.log.Warn("sync notification failed",
			"user_id", userID,
			"block_label", label,
			"error", err,
		)
	}
}

func (m *Manager) title(label string) string {
	if sch, ok := m.registry.Lookup(label); ok && sch.Title != "" {
		return sch.Title
	}
	return label
}

func (m *Manager) head(ctx context.Context, userID, label string) (cachedHead, bool, error) {
	key := cacheKey(userID, label)
	if v, ok := m.cache.Get(key); ok {
		if head, ok := v.(cachedHead); ok {
			return head, true, nil
		}
	}

	commit, err := m.versions.Head(ctx, userID, label)
	if errors.Is(err, version.ErrBlockNotFound) {
		return cachedHead{}, false, nil
	}
	if err != nil {
		return cachedHead{}, false, err
	}

	head := cachedHead{Body: commit.Body, UpdatedAt: commit.CreatedAt}
	m.cacheSet(userID, label, head)
	return head, true, nil
}

func (m *Manager) cacheSet(userID, label string, head cachedHead) {
	m.cache.Set(cacheKey(userID, label), head, 1)
	m.cache.Wait()
}

func cacheKey(userID, label string) string {
	return userID + "\x00" + label
}
