// Package annotation aggregates edit, reaction, and nested-conversation
// facts onto parent CRDT entries (spec §4.G).
package annotation

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrAnnotationOverflow is returned when a parent's reactions cannot be
// condensed into the export size budget even after halving every
// reaction's public-key list to zero.
var ErrAnnotationOverflow = errors.New("annotation: cannot condense reactions within size budget")

const exportByteBudget = 4096

// ChildFact describes a child record dispatched to the aggregator by the
// CRDT layer because its parentId matched a candidate parent's id1/id2.
type ChildFact struct {
	ID1          [32]byte
	Owner        []byte
	CreationTime int64

	IsAnnotationEdit     bool
	IsAnnotationReaction bool

	// Data carries the edit payload when IsAnnotationEdit is set, or the
	// "react/<name>" / "unreact/<name>" command when IsAnnotationReaction
	// is set.
	Data []byte
}

// newerThan implements the fixed (creationTime, id1) tie-break used
// throughout the CRDT layer (spec §9).
func newerThan(aTime int64, aID1 [32]byte, bTime int64, bID1 [32]byte) bool {
	if aTime != bTime {
		return aTime > bTime
	}
	return bytes.Compare(aID1[:], bID1[:]) > 0
}

type reactionEvent struct {
	ownerHex     string
	publicKey    []byte
	creationTime int64
	id1          [32]byte
	isReact      bool // false means the newest event was an "unreact"
}

type editNode struct {
	ownerHex     string
	creationTime int64
	id1          [32]byte
	data         []byte
}

// state is the mutable per-parent aggregation state. It is never exported
// directly; Export() condenses it into a bounded snapshot.
type state struct {
	edit *editNode

	// reactions is keyed by reaction name, then by owner hex.
	reactions map[string]map[string]reactionEvent

	hasNestedConversation bool
}

func newState() *state {
	return &state{reactions: make(map[string]map[string]reactionEvent)}
}

// apply mutates s with child, given parentOwner (for the edit-ownership
// check). It reports whether s changed.
func (s *state) apply(parentOwner []byte, child ChildFact) bool {
	ownerHex := hex.EncodeToString(child.Owner)

	switch {
	case child.IsAnnotationEdit && bytes.Equal(child.Owner, parentOwner):
		if s.edit != nil && !newerThan(child.CreationTime, child.ID1, s.edit.creationTime, s.edit.id1) {
			return false
		}
		s.edit = &editNode{
			ownerHex:     ownerHex,
			creationTime: child.CreationTime,
			id1:          child.ID1,
			data:         append([]byte(nil), child.Data...),
		}
		return true

	case child.IsAnnotationReaction:
		name, isReact, ok := parseReactionCommand(string(child.Data))
		if !ok {
			return false
		}
		byOwner, ok := s.reactions[name]
		if !ok {
			byOwner = make(map[string]reactionEvent)
			s.reactions[name] = byOwner
		}
		existing, had := byOwner[ownerHex]
		if had && !newerThan(child.CreationTime, child.ID1, existing.creationTime, existing.id1) {
			return false
		}
		byOwner[ownerHex] = reactionEvent{
			ownerHex:     ownerHex,
			publicKey:    append([]byte(nil), child.Owner...),
			creationTime: child.CreationTime,
			id1:          child.ID1,
			isReact:      isReact,
		}
		return true

	default:
		if s.hasNestedConversation {
			return false
		}
		s.hasNestedConversation = true
		return true
	}
}

func parseReactionCommand(data string) (name string, isReact bool, ok bool) {
	switch {
	case strings.HasPrefix(data, "react/"):
		return strings.TrimPrefix(data, "react/"), true, true
	case strings.HasPrefix(data, "unreact/"):
		return strings.TrimPrefix(data, "unreact/"), false, true
	default:
		return "", false, false
	}
}
