package approval_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/youlab/memvault/internal/approval"
	"github.com/youlab/memvault/internal/block"
	"github.com/youlab/memvault/internal/logger"
	"github.com/youlab/memvault/internal/proposal"
	"github.com/youlab/memvault/internal/storage"
	"github.com/youlab/memvault/internal/version"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, label, newBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fixture struct {
	engine    *approval.Engine
	blocks    *block.Manager
	versions  *version.Store
	proposals *proposal.Store
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	versions := version.NewStore(db, 100)
	proposals := proposal.NewStore(db, 0)
	registry := block.NewRegistry(map[string]block.Schema{
		"student": {Title: "Student Profile", Fields: []string{"Name", "Interests"}},
	})
	notifier := &recordingNotifier{}
	log := logger.NewNop()

	blocks, err := block.NewManager(versions, proposals, registry, notifier, log, block.ManagerConfig{})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	return &fixture{
		engine:    approval.NewEngine(db, versions, proposals, blocks, log),
		blocks:    blocks,
		versions:  versions,
		proposals: proposals,
		notifier:  notifier,
	}
}

func (f *fixture) propose(t *testing.T, p block.ProposeParams) *proposal.Proposal {
	t.Helper()
	if p.Reasoning == "" {
		p.Reasoning = "test reasoning"
	}
	prop, err := f.blocks.ProposeEdit(context.Background(), p)
	if err != nil {
		t.Fatalf("ProposeEdit: %v", err)
	}
	return prop
}

// ─── Approve ─────────────────────────────────────────────────────────────────

func TestApprove_FreeformAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.blocks.UpdateBlock(ctx, "u1", "scratch", "hello", block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		CurrentValue:  "hello",
		ProposedValue: "world",
	})

	commitID, err := f.engine.Approve(ctx, prop.ID, "alex")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	body, err := f.blocks.CurrentBody(ctx, "u1", "scratch")
	if err != nil {
		t.Fatal(err)
	}
	if body != "hello\n\nworld" {
		t.Errorf("body = %q, want %q", body, "hello\n\nworld")
	}

	got, err := f.proposals.Get(ctx, prop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != proposal.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.AppliedCommit == nil || *got.AppliedCommit != commitID {
		t.Errorf("applied commit = %v, want %s", got.AppliedCommit, commitID)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != "alex" {
		t.Errorf("reviewed by = %v, want alex", got.ReviewedBy)
	}
}

func TestApprove_AppendOnEmptyBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		CurrentValue:  "",
		ProposedValue: "first note",
	})
	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	body, err := f.blocks.CurrentBody(ctx, "u1", "scratch")
	if err != nil {
		t.Fatal(err)
	}
	// No leading separator when there was nothing to append to.
	if body != "first note" {
		t.Errorf("body = %q, want %q", body, "first note")
	}
}

func TestApprove_FieldReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "## Name\n\nCamila\n\n## Interests\n\nchess"
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "student", body, block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "student",
		Field:         "Interests",
		Operation:     proposal.OpReplace,
		CurrentValue:  "chess",
		ProposedValue: "chess, origami",
	})

	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := f.blocks.FieldValue(ctx, "u1", "student", "Interests")
	if err != nil {
		t.Fatal(err)
	}
	if got != "chess, origami" {
		t.Errorf("Interests = %q, want %q", got, "chess, origami")
	}
	// Untouched fields survive.
	name, err := f.blocks.FieldValue(ctx, "u1", "student", "Name")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Camila" {
		t.Errorf("Name = %q, want %q", name, "Camila")
	}
}

func TestApprove_FieldReplacePreservesPreamble(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Direct edits accept any markdown, so a user can legally put text
	// above the first field heading. A field-scoped approval must carry
	// it through.
	body := "Preamble the user typed.\n\n## Name\n\nAlice\n\n## Interests\n\nchess"
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "student", body, block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "student",
		Field:         "Name",
		Operation:     proposal.OpReplace,
		CurrentValue:  "Alice",
		ProposedValue: "Alice Smith",
	})

	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := f.blocks.CurrentBody(ctx, "u1", "student")
	if err != nil {
		t.Fatal(err)
	}
	want := "Preamble the user typed.\n\n## Name\n\nAlice Smith\n\n## Interests\n\nchess"
	if got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestApprove_FieldAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "## Name\n\nCamila\n\n## Interests\n\nchess"
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "student", body, block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "student",
		Field:         "Interests",
		Operation:     proposal.OpAppend,
		CurrentValue:  "chess",
		ProposedValue: "origami",
	})

	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := f.blocks.FieldValue(ctx, "u1", "student", "Interests")
	if err != nil {
		t.Fatal(err)
	}
	if got != "chess\n\norigami" {
		t.Errorf("Interests = %q, want %q", got, "chess\n\norigami")
	}
}

func TestApprove_FullReplaceAndLLMDiff(t *testing.T) {
	for _, op := range []proposal.Operation{proposal.OpFullReplace, proposal.OpLLMDiff} {
		t.Run(string(op), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if _, err := f.blocks.UpdateBlock(ctx, "u1", "scratch", "old", block.AuthorUser, ""); err != nil {
				t.Fatal(err)
			}
			prop := f.propose(t, block.ProposeParams{
				UserID:        "u1",
				AgentID:       "tutor",
				Label:         "scratch",
				Operation:     op,
				CurrentValue:  "old",
				ProposedValue: "entirely new",
			})
			if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
				t.Fatalf("Approve: %v", err)
			}

			body, err := f.blocks.CurrentBody(ctx, "u1", "scratch")
			if err != nil {
				t.Fatal(err)
			}
			if body != "entirely new" {
				t.Errorf("body = %q, want %q", body, "entirely new")
			}
		})
	}
}

func TestApprove_CommitAttribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		ProposedValue: "note",
		Reasoning:     "saw it happen",
	})
	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatal(err)
	}

	head, err := f.versions.Head(ctx, "u1", "scratch")
	if err != nil {
		t.Fatal(err)
	}
	if head.Author != "agent:tutor" {
		t.Errorf("commit author = %q, want agent:tutor", head.Author)
	}
	if !strings.Contains(head.Message, "saw it happen") {
		t.Errorf("commit message %q does not carry the reasoning", head.Message)
	}
}

func TestApprove_StaleLeavesProposalPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.blocks.UpdateBlock(ctx, "u1", "scratch", "v1", block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpFullReplace,
		CurrentValue:  "v1",
		ProposedValue: "agent version",
	})

	// The block moves between proposal and review.
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "scratch", "v2", block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.Approve(ctx, prop.ID, "alex")
	if !errors.Is(err, proposal.ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}

	// Nothing applied, proposal still reviewable.
	body, err := f.blocks.CurrentBody(ctx, "u1", "scratch")
	if err != nil {
		t.Fatal(err)
	}
	if body != "v2" {
		t.Errorf("body = %q, want untouched v2", body)
	}
	got, err := f.proposals.Get(ctx, prop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != proposal.StatusPending {
		t.Errorf("status = %q, want still pending", got.Status)
	}
}

func TestApprove_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		ProposedValue: "note",
	})
	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.Approve(ctx, prop.ID, "alex")
	if !errors.Is(err, proposal.ErrNotPending) {
		t.Errorf("second approve: err = %v, want ErrNotPending", err)
	}

	// Exactly one commit landed.
	metas, err := f.versions.History(ctx, "u1", "scratch", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Errorf("commits = %d, want 1", len(metas))
	}
}

func TestApprove_UnknownProposal(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Approve(context.Background(), "ghost", "alex")
	if !errors.Is(err, proposal.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApprove_Notifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		ProposedValue: "note",
	})
	before := f.notifier.count()
	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); err != nil {
		t.Fatal(err)
	}
	if f.notifier.count() != before+1 {
		t.Errorf("notifications = %d, want %d", f.notifier.count(), before+1)
	}
}

// ─── Reject ──────────────────────────────────────────────────────────────────

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.blocks.UpdateBlock(ctx, "u1", "scratch", "v1", block.AuthorUser, ""); err != nil {
		t.Fatal(err)
	}
	notifications := f.notifier.count()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpFullReplace,
		CurrentValue:  "v1",
		ProposedValue: "agent version",
	})

	if err := f.engine.Reject(ctx, prop.ID, "alex", "not accurate"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, err := f.proposals.Get(ctx, prop.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != proposal.StatusRejected {
		t.Errorf("status = %q, want rejected", got.Status)
	}
	if got.ReviewNote == nil || *got.ReviewNote != "not accurate" {
		t.Errorf("review note = %v, want 'not accurate'", got.ReviewNote)
	}

	// Content untouched, no sync notification for rejections.
	body, err := f.blocks.CurrentBody(ctx, "u1", "scratch")
	if err != nil {
		t.Fatal(err)
	}
	if body != "v1" {
		t.Errorf("body = %q, want v1", body)
	}
	if f.notifier.count() != notifications {
		t.Error("rejection triggered a sync notification")
	}
}

func TestReject_ThenApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		ProposedValue: "note",
	})
	if err := f.engine.Reject(ctx, prop.ID, "alex", ""); err != nil {
		t.Fatal(err)
	}

	_, err := f.engine.Approve(ctx, prop.ID, "alex")
	if !errors.Is(err, proposal.ErrNotPending) {
		t.Errorf("approve after reject: err = %v, want ErrNotPending", err)
	}
}

func TestReject_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "scratch",
		Operation:     proposal.OpAppend,
		ProposedValue: "note",
	})
	if err := f.engine.Reject(ctx, prop.ID, "alex", ""); err != nil {
		t.Fatal(err)
	}

	err := f.engine.Reject(ctx, prop.ID, "alex", "")
	if !errors.Is(err, proposal.ErrAlreadyResolved) {
		t.Errorf("second reject: err = %v, want ErrAlreadyResolved", err)
	}
}

// ─── End-to-end workflow ─────────────────────────────────────────────────────

// TestWorkflow_StaleReproposeRestore chains the whole lifecycle on one
// freeform block: seed, propose, invalidate by direct edit, fail the
// stale approval, re-propose and approve, then restore the original.
func TestWorkflow_StaleReproposeRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1. User creates the block.
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "goals", "Get into college.", block.AuthorUser, "initial"); err != nil {
		t.Fatal(err)
	}
	view, err := f.blocks.GetBlock(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}
	if view.Body != "Get into college." || view.PendingDiffCount != 0 {
		t.Fatalf("fresh block: body = %q, pending = %d", view.Body, view.PendingDiffCount)
	}
	firstCommit, err := f.versions.Head(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}

	// 2. Agent proposes an append against the live body.
	prop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "goals",
		Operation:     proposal.OpAppend,
		CurrentValue:  "Get into college.",
		ProposedValue: "Improve SAT score.",
	})
	pending, err := f.proposals.ListPending(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Status != proposal.StatusPending {
		t.Fatalf("pending after propose = %v", pending)
	}

	// 3. User edits directly, moving the content out from under the
	// proposal.
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "goals", "Get into college. Focus on essays.", block.AuthorUser, "refine"); err != nil {
		t.Fatal(err)
	}

	// 4. Approving the now-stale proposal fails and changes nothing.
	if _, err := f.engine.Approve(ctx, prop.ID, "alex"); !errors.Is(err, proposal.ErrStale) {
		t.Fatalf("stale approve: err = %v, want ErrStale", err)
	}
	body, err := f.blocks.CurrentBody(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Get into college. Focus on essays." {
		t.Fatalf("body after failed approve = %q", body)
	}

	// 5. Agent re-proposes with a fresh read; the approval lands.
	reprop := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "goals",
		Operation:     proposal.OpAppend,
		CurrentValue:  "Get into college. Focus on essays.",
		ProposedValue: "Improve SAT score.",
	})
	if _, err := f.engine.Approve(ctx, reprop.ID, "alex"); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	body, err = f.blocks.CurrentBody(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Get into college. Focus on essays.\n\nImprove SAT score." {
		t.Fatalf("body after approval = %q", body)
	}
	metas, err := f.versions.History(ctx, "u1", "goals", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("history = %d commits, want 3", len(metas))
	}
	secondCommit, thirdCommit := metas[1], metas[0]

	// 6. Restore to the first commit: a fourth commit, nothing erased.
	restoredID, err := f.versions.Restore(ctx, "u1", "goals", firstCommit.ID, "user")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restoredBody, err := f.versions.GetVersion(ctx, "u1", "goals", restoredID)
	if err != nil {
		t.Fatal(err)
	}
	f.blocks.Committed(ctx, "u1", "goals", restoredBody)

	body, err = f.blocks.CurrentBody(ctx, "u1", "goals")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Get into college." {
		t.Fatalf("body after restore = %q", body)
	}
	metas, err = f.versions.History(ctx, "u1", "goals", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 4 {
		t.Fatalf("history = %d commits, want 4", len(metas))
	}
	for _, id := range []string{secondCommit.ID, thirdCommit.ID} {
		if _, err := f.versions.GetVersion(ctx, "u1", "goals", id); err != nil {
			t.Errorf("commit %s no longer retrievable: %v", id, err)
		}
	}
}

// TestWorkflow_SupersededThenApproved walks the full loop: two competing
// proposals on the same field, the newer one wins review, and history
// records the whole story.
func TestWorkflow_SupersededThenApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "## Name\n\nCamila\n\n## Interests\n\nchess"
	if _, err := f.blocks.UpdateBlock(ctx, "u1", "student", body, block.AuthorUser, "initial profile"); err != nil {
		t.Fatal(err)
	}

	older := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "student",
		Field:         "Interests",
		Operation:     proposal.OpReplace,
		CurrentValue:  "chess",
		ProposedValue: "chess, checkers",
	})
	newer := f.propose(t, block.ProposeParams{
		UserID:        "u1",
		AgentID:       "tutor",
		Label:         "student",
		Field:         "Interests",
		Operation:     proposal.OpReplace,
		CurrentValue:  "chess",
		ProposedValue: "chess, origami",
	})

	// The older proposal is out of the race.
	_, err := f.engine.Approve(ctx, older.ID, "alex")
	if !errors.Is(err, proposal.ErrNotPending) {
		t.Fatalf("approving superseded proposal: err = %v, want ErrNotPending", err)
	}

	if _, err := f.engine.Approve(ctx, newer.ID, "alex"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := f.blocks.FieldValue(ctx, "u1", "student", "Interests")
	if err != nil {
		t.Fatal(err)
	}
	if got != "chess, origami" {
		t.Errorf("Interests = %q, want the newer proposal's value", got)
	}

	metas, err := f.versions.History(ctx, "u1", "student", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("commits = %d, want 2", len(metas))
	}
	if metas[0].Author != "agent:tutor" || metas[1].Author != "user" {
		t.Errorf("history authors = %s, %s; want agent:tutor, user", metas[0].Author, metas[1].Author)
	}
}
