// Package proposal persists agent-authored edit suggestions and their
// lifecycle. A proposal is created pending and ends in exactly one
// terminal state: approved, rejected, superseded, or expired. Only the
// approval engine may move a proposal out of pending.
package proposal

import "fmt"

// --- Operation enum ---

// Operation defines how a proposal's proposed value combines with the
// block's current content when the proposal is approved.
type Operation string

const (
	// OpAppend concatenates the proposed value onto the current content
	// with a blank-line separator.
	OpAppend Operation = "append"
	// OpReplace substitutes a single field's value within a structured
	// block.
	OpReplace Operation = "replace"
	// OpFullReplace substitutes the entire block body.
	OpFullReplace Operation = "full_replace"
	// OpLLMDiff is a full replacement whose value was produced by an
	// upstream LLM-assisted merge. It documents provenance; at this
	// layer it applies exactly like full_replace.
	OpLLMDiff Operation = "llm_diff"
)

var validOperations = map[Operation]bool{
	OpAppend:      true,
	OpReplace:     true,
	OpFullReplace: true,
	OpLLMDiff:     true,
}

// ValidateOperation returns an error if the operation is not recognized.
func ValidateOperation(op Operation) error {
	if !validOperations[op] {
		return fmt.Errorf("invalid operation %q: must be one of: append, replace, full_replace, llm_diff", op)
	}
	return nil
}

// --- Confidence enum ---

// Confidence is the agent's self-reported certainty about a proposal.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var validConfidences = map[Confidence]bool{
	ConfidenceLow:    true,
	ConfidenceMedium: true,
	ConfidenceHigh:   true,
}

// ValidateConfidence returns an error if the confidence is not recognized.
func ValidateConfidence(c Confidence) error {
	if !validConfidences[c] {
		return fmt.Errorf("invalid confidence %q: must be one of: low, medium, high", c)
	}
	return nil
}

// --- Status enum ---

// Status tracks a proposal's lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusSuperseded Status = "superseded"
	StatusExpired    Status = "expired"
)

// Terminal reports whether the status is final. Transitions never leave
// a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusSuperseded, StatusExpired:
		return true
	}
	return false
}

// --- Core data structure ---

// Proposal is an agent's unapplied suggestion to change a block.
//
// CurrentValue is the live value of the target at proposal time and is
// the staleness anchor: approval only applies against content that still
// matches it. Field is empty for whole-block edits.
type Proposal struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	AgentID       string     `json:"agent_id"`
	BlockLabel    string     `json:"block_label"`
	Field         string     `json:"field,omitempty"`
	Operation     Operation  `json:"operation"`
	CurrentValue  string     `json:"current_value"`
	ProposedValue string     `json:"proposed_value"`
	Reasoning     string     `json:"reasoning"`
	Confidence    Confidence `json:"confidence"`
	Status        Status     `json:"status"`
	CreatedAt     string     `json:"created_at"`
	ReviewedAt    *string    `json:"reviewed_at,omitempty"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewNote    *string    `json:"review_note,omitempty"`
	AppliedCommit *string    `json:"applied_commit,omitempty"`
}
