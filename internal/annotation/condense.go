package annotation

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Export is the condensed, bounded snapshot of a parent's annotation
// state, the value stored as NodeValues.Annotations and shipped to view
// consumers (spec §4.G).
type Export struct {
	Edit                  *EditExport     `json:"edit,omitempty"`
	HasNestedConversation bool            `json:"hasNestedConversation"`
	Reactions             ReactionsExport `json:"reactions"`
}

// EditExport is the most recent edit applied to a parent, if any.
type EditExport struct {
	OwnerHex     string `json:"owner"`
	CreationTime int64  `json:"creationTime"`
	Data         []byte `json:"data"`
}

// ReactionsExport is the condensed reactions image: a name-keyed map of
// counts, with HasMore set when any reaction's publicKeys list was
// truncated to fit the size budget.
type ReactionsExport struct {
	HasMore   bool                      `json:"hasMore"`
	Reactions map[string]ReactionCounts `json:"reactions"`
}

// ReactionCounts is one reaction name's condensed tally: Count is the true
// total regardless of truncation, PublicKeys may be a truncated prefix.
type ReactionCounts struct {
	Count      int      `json:"count"`
	PublicKeys []string `json:"publicKeys"`
}

type workingReaction struct {
	name  string
	total int
	keys  [][]byte
}

// condense builds s's export, halving the largest reaction's publicKeys
// list (ties broken by name ascending) until the JSON marshals within
// exportByteBudget bytes, or failing with ErrAnnotationOverflow once every
// reaction has been halved to zero keys and it still doesn't fit.
func condense(s *state, targetPublicKey []byte) (*Export, error) {
	var edit *EditExport
	if s.edit != nil {
		edit = &EditExport{
			OwnerHex:     s.edit.ownerHex,
			CreationTime: s.edit.creationTime,
			Data:         append([]byte(nil), s.edit.data...),
		}
	}

	var working []*workingReaction
	for name, byOwner := range s.reactions {
		var keys [][]byte
		for _, e := range byOwner {
			if e.isReact {
				keys = append(keys, e.publicKey)
			}
		}
		if len(keys) == 0 {
			continue
		}
		sortKeysTargetFirst(keys, targetPublicKey)
		working = append(working, &workingReaction{name: name, total: len(keys), keys: keys})
	}
	sort.Slice(working, func(i, j int) bool { return working[i].name < working[j].name })

	hasMore := false
	for {
		exp := &Export{Edit: edit, HasNestedConversation: s.hasNestedConversation}
		exp.Reactions.HasMore = hasMore
		exp.Reactions.Reactions = make(map[string]ReactionCounts, len(working))
		for _, w := range working {
			exp.Reactions.Reactions[w.name] = ReactionCounts{
				Count:      w.total,
				PublicKeys: hexAll(w.keys),
			}
		}

		buf, err := json.Marshal(exp)
		if err != nil {
			return nil, err
		}
		if len(buf) <= exportByteBudget {
			return exp, nil
		}

		victim := largestReaction(working)
		if victim == nil || len(victim.keys) == 0 {
			return nil, ErrAnnotationOverflow
		}
		victim.keys = victim.keys[:len(victim.keys)/2]
		hasMore = true
	}
}

// largestReaction returns the working reaction with the most remaining
// keys, breaking ties by name ascending. It returns nil when every
// reaction already has zero keys.
func largestReaction(working []*workingReaction) *workingReaction {
	var best *workingReaction
	for _, w := range working {
		if len(w.keys) == 0 {
			continue
		}
		if best == nil || len(w.keys) > len(best.keys) ||
			(len(w.keys) == len(best.keys) && w.name < best.name) {
			best = w
		}
	}
	return best
}

func sortKeysTargetFirst(keys [][]byte, target []byte) {
	sort.Slice(keys, func(i, j int) bool {
		iTarget := len(target) > 0 && bytes.Equal(keys[i], target)
		jTarget := len(target) > 0 && bytes.Equal(keys[j], target)
		if iTarget != jTarget {
			return iTarget
		}
		return bytes.Compare(keys[i], keys[j]) < 0
	})
}

func hexAll(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = hex.EncodeToString(k)
	}
	return out
}
