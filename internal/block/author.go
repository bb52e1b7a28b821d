package block

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAuthorForDirectEdit is returned when an agent author is
// submitted through the direct-edit path. Agent edits must go through
// the proposal workflow; this is a contract violation, not a transient
// condition.
var ErrInvalidAuthorForDirectEdit = errors.New("agent authors must use the proposal path")

// Author attributes a commit: "user", "system", or "agent:{id}".
type Author string

const (
	AuthorUser   Author = "user"
	AuthorSystem Author = "system"

	agentPrefix = "agent:"
)

// AgentAuthor builds the author string for an agent id.
func AgentAuthor(agentID string) Author {
	return Author(agentPrefix + agentID)
}

// IsAgent reports whether the author is an agent.
func (a Author) IsAgent() bool {
	return strings.HasPrefix(string(a), agentPrefix)
}

// AgentID returns the agent id for agent authors, "" otherwise.
func (a Author) AgentID() string {
	if !a.IsAgent() {
		return ""
	}
	return strings.TrimPrefix(string(a), agentPrefix)
}

// Valid reports whether the author is well-formed.
func (a Author) Valid() bool {
	if a == AuthorUser || a == AuthorSystem {
		return true
	}
	return a.IsAgent() && a.AgentID() != ""
}

// ParseAuthor validates a raw author string from an external caller.
func ParseAuthor(raw string) (Author, error) {
	a := Author(raw)
	if !a.Valid() {
		return "", fmt.Errorf("invalid author %q: must be \"user\", \"system\", or \"agent:{id}\"", raw)
	}
	return a, nil
}
