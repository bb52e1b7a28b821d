package proposal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/youlab/memvault/internal/storage"
)

var (
	// ErrNotFound is returned when no proposal exists for the given id.
	ErrNotFound = errors.New("proposal not found")

	// ErrAlreadyResolved is returned when a terminal proposal is
	// resolved a second time. Surfaced rather than swallowed so
	// double-approval bugs show up at the call site.
	ErrAlreadyResolved = errors.New("proposal already resolved")

	// ErrNotPending is returned when an operation requires a pending
	// proposal and the proposal is in any other state.
	ErrNotPending = errors.New("proposal not pending")

	// ErrStale is returned when a proposal's recorded current value no
	// longer matches the block's live content. The agent must re-read
	// and resubmit; the store never rebases silently.
	ErrStale = errors.New("proposal stale")
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Store persists proposals in the shared SQLite database. It owns
// proposal rows exclusively; status transitions out of pending happen
// only through MarkStatusTx, which the approval engine drives.
type Store struct {
	db  *storage.DB
	ttl time.Duration
}

// NewStore creates a proposal store. ttl is how long a proposal may sit
// unreviewed before it counts as expired; values <= 0 fall back to 7 days.
func NewStore(db *storage.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl}
}

// CreateParams holds the input for Create. The caller (the block
// manager) is responsible for checking CurrentValue against the live
// block content before calling.
type CreateParams struct {
	UserID        string
	AgentID       string
	BlockLabel    string
	Field         string
	Operation     Operation
	CurrentValue  string
	ProposedValue string
	Reasoning     string
	Confidence    Confidence
}

// Create inserts a new pending proposal, atomically superseding any
// still-pending proposal for the same (user, block, field). Newest wins,
// never the reverse, never a merge: two proposals racing for the same
// field deterministically leave exactly one pending survivor.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Proposal, error) {
	if err := ValidateOperation(p.Operation); err != nil {
		return nil, fmt.Errorf("proposal: create: %w", err)
	}
	if p.Confidence == "" {
		p.Confidence = ConfidenceMedium
	}
	if err := ValidateConfidence(p.Confidence); err != nil {
		return nil, fmt.Errorf("proposal: create: %w", err)
	}

	now := timeNow().UTC().Format(time.RFC3339Nano)
	prop := &Proposal{
		ID:            uuid.NewString(),
		UserID:        p.UserID,
		AgentID:       p.AgentID,
		BlockLabel:    p.BlockLabel,
		Field:         p.Field,
		Operation:     p.Operation,
		CurrentValue:  p.CurrentValue,
		ProposedValue: p.ProposedValue,
		Reasoning:     p.Reasoning,
		Confidence:    p.Confidence,
		Status:        StatusPending,
		CreatedAt:     now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("proposal: create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE proposals
		SET status = ?, reviewed_at = ?
		WHERE user_id = ? AND block_label = ? AND field = ? AND status = ?`,
		StatusSuperseded, now,
		p.UserID, p.BlockLabel, p.Field, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("proposal: supersede: %w", storage.Unavailable(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO proposals
			(id, user_id, agent_id, block_label, field, operation,
			 current_value, proposed_value, reasoning, confidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prop.ID, prop.UserID, prop.AgentID, prop.BlockLabel, prop.Field, prop.Operation,
		prop.CurrentValue, prop.ProposedValue, prop.Reasoning, prop.Confidence, prop.Status, prop.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("proposal: insert: %w", storage.Unavailable(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("proposal: create commit: %w", storage.Unavailable(err))
	}
	return prop, nil
}

// Get returns a proposal by id, lazily expiring it first if its TTL has
// run out.
func (s *Store) Get(ctx context.Context, id string) (*Proposal, error) {
	if err := s.expireOne(ctx, id); err != nil {
		return nil, err
	}

	row := s.db.SQL().QueryRowContext(ctx, selectProposal+` WHERE id = ?`, id)
	prop, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal: get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("proposal: get %s: %w", id, storage.Unavailable(err))
	}
	return prop, nil
}

// ListPending returns pending proposals, newest first. label filters to
// one block when non-empty; userID filters to one user when non-empty.
// TTL expiry is applied before listing.
func (s *Store) ListPending(ctx context.Context, userID, label string) ([]Proposal, error) {
	if err := s.expireStale(ctx); err != nil {
		return nil, err
	}

	query := selectProposal + ` WHERE status = ?`
	args := []any{StatusPending}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if label != "" {
		query += ` AND block_label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("proposal: list pending: %w", storage.Unavailable(err))
	}
	defer rows.Close()

	var props []Proposal
	for rows.Next() {
		prop, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("proposal: list scan: %w", storage.Unavailable(err))
		}
		props = append(props, *prop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: list rows: %w", storage.Unavailable(err))
	}
	return props, nil
}

// CountPending returns the number of pending proposals for one block.
func (s *Store) CountPending(ctx context.Context, userID, label string) (int, error) {
	if err := s.expireStale(ctx); err != nil {
		return 0, err
	}

	row := s.db.SQL().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM proposals
		WHERE user_id = ? AND block_label = ? AND status = ?`,
		userID, label, StatusPending,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("proposal: count pending: %w", storage.Unavailable(err))
	}
	return n, nil
}

// MarkStatusTx transitions a proposal out of pending inside the caller's
// transaction. Transitions are monotonic: a proposal already in a
// terminal state fails with ErrAlreadyResolved, and a missing proposal
// with ErrNotFound. appliedCommit is set only for approvals.
func (s *Store) MarkStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status, appliedCommit, reviewer, note string) error {
	if !status.Terminal() {
		return fmt.Errorf("proposal: mark status: %q is not a terminal status", status)
	}

	now := timeNow().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
		UPDATE proposals
		SET status = ?, reviewed_at = ?, reviewed_by = ?, review_note = ?, applied_commit = ?
		WHERE id = ? AND status = ?`,
		status, now, nullable(reviewer), nullable(note), nullable(appliedCommit),
		id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("proposal: mark status: %w", storage.Unavailable(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("proposal: mark status: %w", storage.Unavailable(err))
	}
	if n == 1 {
		return nil
	}

	// Nothing flipped: either the proposal is gone or it is already
	// terminal. Distinguish the two for the caller.
	row := tx.QueryRowContext(ctx, `SELECT status FROM proposals WHERE id = ?`, id)
	var current Status
	scanErr := row.Scan(&current)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return fmt.Errorf("proposal: mark status %s: %w", id, ErrNotFound)
	}
	if scanErr != nil {
		return fmt.Errorf("proposal: mark status: %w", storage.Unavailable(scanErr))
	}
	return fmt.Errorf("proposal: %s is %s: %w", id, current, ErrAlreadyResolved)
}

// SweepExpired marks every over-TTL pending proposal as expired and
// returns how many were flipped. The server runs this periodically;
// reads also expire lazily, so the sweep is belt-and-braces.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.SQL().ExecContext(ctx, `
		UPDATE proposals
		SET status = ?, reviewed_at = ?
		WHERE status = ? AND created_at < ?`,
		StatusExpired, timeNow().UTC().Format(time.RFC3339Nano),
		StatusPending, s.cutoff(),
	)
	if err != nil {
		return 0, fmt.Errorf("proposal: sweep expired: %w", storage.Unavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("proposal: sweep expired: %w", storage.Unavailable(err))
	}
	return n, nil
}

// cutoff is the newest created_at that still counts as expired.
// RFC 3339 timestamps in UTC compare correctly as strings.
func (s *Store) cutoff() string {
	return timeNow().Add(-s.ttl).UTC().Format(time.RFC3339Nano)
}

func (s *Store) expireStale(ctx context.Context) error {
	_, err := s.db.SQL().ExecContext(ctx, `
		UPDATE proposals
		SET status = ?, reviewed_at = ?
		WHERE status = ? AND created_at < ?`,
		StatusExpired, timeNow().UTC().Format(time.RFC3339Nano),
		StatusPending, s.cutoff(),
	)
	if err != nil {
		return fmt.Errorf("proposal: expire stale: %w", storage.Unavailable(err))
	}
	return nil
}

func (s *Store) expireOne(ctx context.Context, id string) error {
	_, err := s.db.SQL().ExecContext(ctx, `
		UPDATE proposals
		SET status = ?, reviewed_at = ?
		WHERE id = ? AND status = ? AND created_at < ?`,
		StatusExpired, timeNow().UTC().Format(time.RFC3339Nano),
		id, StatusPending, s.cutoff(),
	)
	if err != nil {
		return fmt.Errorf("proposal: expire %s: %w", id, storage.Unavailable(err))
	}
	return nil
}

const selectProposal = `
	SELECT id, user_id, agent_id, block_label, field, operation,
	       current_value, proposed_value, reasoning, confidence, status,
	       created_at, reviewed_at, reviewed_by, review_note, applied_commit
	FROM proposals`

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*Proposal, error) {
	var p Proposal
	err := row.Scan(
		&p.ID, &p.UserID, &p.AgentID, &p.BlockLabel, &p.Field, &p.Operation,
		&p.CurrentValue, &p.ProposedValue, &p.Reasoning, &p.Confidence, &p.Status,
		&p.CreatedAt, &p.ReviewedAt, &p.ReviewedBy, &p.ReviewNote, &p.AppliedCommit,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
