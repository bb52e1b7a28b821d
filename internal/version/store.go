// Package version implements the append-only commit history for memory
// blocks. Every mutation of a block's body is a new, attributed,
// immutable commit; history is never rewritten or deleted. "Undo" is
// Restore, which copies old content forward as a fresh commit.
package version

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/youlab/memvault/internal/storage"
)

var (
	// ErrBlockNotFound is returned when a block has no commits.
	ErrBlockNotFound = errors.New("block not found")

	// ErrVersionNotFound is returned when a commit id does not exist
	// for the given block.
	ErrVersionNotFound = errors.New("version not found")
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Commit is an immutable snapshot of a block's body at one point in time.
type Commit struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Label     string `json:"block_label"`
	Seq       int64  `json:"seq"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// CommitMeta is a Commit without its body, for history listings.
type CommitMeta struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	BodyBytes int    `json:"body_bytes"`
	CreatedAt string `json:"created_at"`
}

// Store is the durable, per-(user, block) commit history over SQLite.
//
// Concurrent writers for the same block are serialized by SQLite's
// single-writer lock; the seq column is assigned atomically inside the
// insert statement and carries a UNIQUE constraint as a lost-update
// backstop. Store performs no retries: infrastructure failures surface
// as storage.ErrUnavailable and the operation simply did not happen.
type Store struct {
	db         *storage.DB
	historyCap int
}

// NewStore creates a version store. historyCap bounds History results;
// values <= 0 fall back to 100.
func NewStore(db *storage.DB, historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &Store{db: db, historyCap: historyCap}
}

const insertCommit = `
	INSERT INTO commits (id, user_id, block_label, seq, body, author, message, created_at)
	SELECT ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
	FROM commits WHERE user_id = ? AND block_label = ?`

// Write appends a new commit for the block and returns its id. An empty
// body is a legal commit. Blocks are created implicitly on first write.
func (s *Store) Write(ctx context.Context, userID, label, body, author, message string) (string, error) {
	return s.write(ctx, s.db.SQL(), userID, label, body, author, message)
}

// WriteTx is Write inside a caller-owned transaction. The approval
// engine uses it so the commit and the proposal status flip either both
// apply or neither does.
func (s *Store) WriteTx(ctx context.Context, tx *sql.Tx, userID, label, body, author, message string) (string, error) {
	return s.write(ctx, tx, userID, label, body, author, message)
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) write(ctx context.Context, db execContexter, userID, label, body, author, message string) (string, error) {
	now := timeNow().UTC()
	id := commitID(userID, label, body, author, message, now)

	_, err := db.ExecContext(ctx, insertCommit,
		id, userID, label, body, author, message, now.Format(time.RFC3339Nano),
		userID, label,
	)
	if err != nil {
		return "", fmt.Errorf("version: write %s/%s: %w", userID, label, storage.Unavailable(err))
	}
	return id, nil
}

// Head returns the latest commit for the block.
func (s *Store) Head(ctx context.Context, userID, label string) (*Commit, error) {
	row := s.db.SQL().QueryRowContext(ctx, `
		SELECT id, user_id, block_label, seq, body, author, message, created_at
		FROM commits
		WHERE user_id = ? AND block_label = ?
		ORDER BY seq DESC LIMIT 1`,
		userID, label,
	)
	var c Commit
	err := row.Scan(&c.ID, &c.UserID, &c.Label, &c.Seq, &c.Body, &c.Author, &c.Message, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version: head %s/%s: %w", userID, label, ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("version: head %s/%s: %w", userID, label, storage.Unavailable(err))
	}
	return &c, nil
}

// History returns commit metadata most-recent-first. limit <= 0 or above
// the configured cap falls back to the cap.
func (s *Store) History(ctx context.Context, userID, label string, limit int) ([]CommitMeta, error) {
	if limit <= 0 || limit > s.historyCap {
		limit = s.historyCap
	}

	rows, err := s.db.SQL().QueryContext(ctx, `
		SELECT id, seq, author, message, length(body), created_at
		FROM commits
		WHERE user_id = ? AND block_label = ?
		ORDER BY seq DESC LIMIT ?`,
		userID, label, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("version: history %s/%s: %w", userID, label, storage.Unavailable(err))
	}
	defer rows.Close()

	var metas []CommitMeta
	for rows.Next() {
		var m CommitMeta
		if err := rows.Scan(&m.ID, &m.Seq, &m.Author, &m.Message, &m.BodyBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("version: history scan: %w", storage.Unavailable(err))
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("version: history rows: %w", storage.Unavailable(err))
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("version: history %s/%s: %w", userID, label, ErrBlockNotFound)
	}
	return metas, nil
}

// GetVersion returns the body at a specific historical commit.
func (s *Store) GetVersion(ctx context.Context, userID, label, commitID string) (string, error) {
	row := s.db.SQL().QueryRowContext(ctx, `
		SELECT body FROM commits
		WHERE user_id = ? AND block_label = ? AND id = ?`,
		userID, label, commitID,
	)
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("version: %s/%s@%s: %w", userID, label, commitID, ErrVersionNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("version: get %s/%s@%s: %w", userID, label, commitID, storage.Unavailable(err))
	}
	return body, nil
}

// Restore copies the content at commitID forward as a brand-new commit.
// This is the only sanctioned undo: prior commits stay retrievable.
func (s *Store) Restore(ctx context.Context, userID, label, commitID, author string) (string, error) {
	body, err := s.GetVersion(ctx, userID, label, commitID)
	if err != nil {
		return "", err
	}
	return s.Write(ctx, userID, label, body, author, fmt.Sprintf("Restored from %s", commitID))
}

// Labels returns every label with at least one commit for the user.
func (s *Store) Labels(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
		SELECT DISTINCT block_label FROM commits
		WHERE user_id = ? ORDER BY block_label`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("version: labels %s: %w", userID, storage.Unavailable(err))
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("version: labels scan: %w", storage.Unavailable(err))
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("version: labels rows: %w", storage.Unavailable(err))
	}
	return labels, nil
}

// commitID derives a short content-addressed identifier, git style: the
// first 12 hex chars of a SHA-256 over the commit's identity fields.
func commitID(userID, label, body, author, message string, ts time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00", userID, label, author, message, ts.UnixNano())
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))[:12]
}
