package p2pclient

import (
	"fmt"
	"sort"
	"sync"
)

// IncludeLicenses is the fetch permission's tri-state clamp on a fetch
// request's includeLicenses option (spec §6).
type IncludeLicenses string

const (
	LicensesNone          IncludeLicenses = ""
	LicensesInclude       IncludeLicenses = "Include"
	LicensesExtend        IncludeLicenses = "Extend"
	LicensesIncludeExtend IncludeLicenses = "IncludeExtend"
)

// EmbedFilter is one entry of a fetch permission's allowEmbed list (spec §6).
type EmbedFilter struct {
	NodeType []byte
	Filters  []FilterExpr
}

// FetchPermissions is the fetchPermissions half of a peer's Permissions
// (spec §6).
type FetchPermissions struct {
	AllowNodeTypes       [][]byte
	AllowEmbed           []EmbedFilter
	AllowAlgos           []string
	AllowTrigger         bool
	AllowReadBlob        bool
	AllowIncludeLicenses IncludeLicenses
}

// StorePermissions is the storePermissions half of a peer's Permissions
// (spec §6).
type StorePermissions struct {
	AllowStore     bool
	AllowWriteBlob bool
}

// Permissions is the full per-peer permission set (spec §6).
type Permissions struct {
	AllowUncheckedAccess bool
	Store                StorePermissions
	Fetch                FetchPermissions
	Region               string
	Jurisdiction         string
}

// PermissionStore caches a peer's Permissions in memory, falling back to a
// slower authoritative lookup on a cache miss — the teacher's
// cache-then-authoritative-store shape (core/access_control.go), adapted
// from ledger-backed RBAC to an in-memory per-peer permission set. A
// cached entry is kept until Invalidate drops it; entries carry no
// version. The cache is guarded by a mutex.
type PermissionStore struct {
	mu     sync.Mutex
	lookup func(peerID string) (Permissions, error)
	cache  map[string]Permissions
}

// NewPermissionStore returns a PermissionStore backed by lookup, which is
// consulted only on a cache miss.
func NewPermissionStore(lookup func(peerID string) (Permissions, error)) *PermissionStore {
	return &PermissionStore{lookup: lookup, cache: make(map[string]Permissions)}
}

// Get returns peerID's cached Permissions, consulting the authoritative
// lookup and populating the cache on a miss.
func (s *PermissionStore) Get(peerID string) (Permissions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.cache[peerID]; ok {
		return p, nil
	}
	p, err := s.lookup(peerID)
	if err != nil {
		return Permissions{}, err
	}
	s.cache[peerID] = p
	return p, nil
}

// Invalidate drops peerID's cached Permissions so the next Get re-consults
// the authoritative lookup.
func (s *PermissionStore) Invalidate(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, peerID)
}

// CheckStore enforces spec §4.E's store permission rule and returns the
// source/target public keys the stored record must carry.
func CheckStore(p Permissions, remotePublicKey []byte) (sourcePublicKey, targetPublicKey []byte, err error) {
	if !p.AllowUncheckedAccess && !p.Store.AllowStore {
		return nil, nil, fmt.Errorf("%w: store", ErrNotAllowed)
	}
	return remotePublicKey, remotePublicKey, nil
}

// CheckWriteBlob enforces spec §4.E's write-blob permission rule.
func CheckWriteBlob(p Permissions, remotePublicKey, localPublicKey []byte) (sourcePublicKey, targetPublicKey []byte, err error) {
	if !p.AllowUncheckedAccess && !p.Store.AllowWriteBlob {
		return nil, nil, fmt.Errorf("%w: write-blob", ErrNotAllowed)
	}
	return remotePublicKey, localPublicKey, nil
}

// CheckReadBlob enforces spec §4.E's read-blob permission rule.
func CheckReadBlob(p Permissions, remotePublicKey, localPublicKey []byte) (sourcePublicKey, targetPublicKey []byte, err error) {
	if !p.AllowUncheckedAccess && !p.Fetch.AllowReadBlob {
		return nil, nil, fmt.Errorf("%w: read-blob", ErrNotAllowed)
	}
	return localPublicKey, remotePublicKey, nil
}

// CheckUnsubscribe enforces spec §4.E's unsubscribe permission rule
// (target=remote; any peer may always cancel its own subscriptions).
func CheckUnsubscribe(remotePublicKey []byte) (targetPublicKey []byte) {
	return remotePublicKey
}

// CheckMessage enforces spec §4.E's message permission rule
// (source=remote).
func CheckMessage(remotePublicKey []byte) (sourcePublicKey []byte) {
	return remotePublicKey
}

// FetchQuery is the inbound half of a fetch request the permission filter
// needs to check (spec §4.E).
type FetchQuery struct {
	NodeTypes       [][]byte
	Algo            string
	TriggerNodeID   []byte
	TriggerInterval int
	Embed           []EmbedFilter
	IncludeLicenses IncludeLicenses
	Region          string
	Jurisdiction    string
}

// CheckFetch enforces spec §4.E's fetch permission rules on q and returns
// a clamped copy of it to actually serve; q itself is not modified. localPerms is this peer's
// own declared region/jurisdiction, intersected with the remote's.
func CheckFetch(p Permissions, localPerms Permissions, q FetchQuery) (FetchQuery, error) {
	if !p.AllowUncheckedAccess {
		if (q.TriggerNodeID != nil || q.TriggerInterval > 0) && !p.Fetch.AllowTrigger {
			return FetchQuery{}, fmt.Errorf("%w: triggers not permitted", ErrNotAllowed)
		}
		for _, nt := range q.NodeTypes {
			if !anyPrefixMatch(p.Fetch.AllowNodeTypes, nt) {
				return FetchQuery{}, fmt.Errorf("%w: nodeType %x not permitted", ErrNotAllowed, nt)
			}
		}
		if q.Algo != "" && !containsString(p.Fetch.AllowAlgos, q.Algo) {
			return FetchQuery{}, fmt.Errorf("%w: algorithm %q not permitted", ErrNotAllowed, q.Algo)
		}
	}

	out := q
	out.Embed = intersectEmbed(q.Embed, p.Fetch.AllowEmbed)
	out.IncludeLicenses = clampLicenses(q.IncludeLicenses, p.Fetch.AllowIncludeLicenses)
	out.Region = intersectString(localPerms.Region, p.Region)
	out.Jurisdiction = intersectString(localPerms.Jurisdiction, p.Jurisdiction)
	return out, nil
}

func anyPrefixMatch(allowed [][]byte, nodeType []byte) bool {
	for _, a := range allowed {
		if len(a) <= len(nodeType) && byteEqual(nodeType[:len(a)], a) {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// intersectEmbed keeps only the requested embed entries whose nodeType
// appears in the allowed list, deduplicated by DeepHash (spec §4.E):
// duplicate requested entries (by content hash) collapse to one. A kept
// entry passes through with its own requested filters; the allowed
// entry's filters are not merged in.
func intersectEmbed(requested, allowed []EmbedFilter) []EmbedFilter {
	allowedByType := make(map[string]EmbedFilter, len(allowed))
	for _, a := range allowed {
		allowedByType[string(a.NodeType)] = a
	}
	seen := make(map[[32]byte]bool)
	var out []EmbedFilter
	for _, r := range requested {
		if _, ok := allowedByType[string(r.NodeType)]; !ok {
			continue
		}
		h := embedDeepHash(r)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, r)
	}
	return out
}

func embedDeepHash(e EmbedFilter) [32]byte {
	parts := [][]byte{e.NodeType, nil}
	for _, f := range e.Filters {
		parts = append(parts, []byte(f.Field), []byte(f.Cmp), f.Value, nil)
	}
	return deepHashBytes(parts)
}

// clampLicenses reduces requested to the strongest subset permitted by
// allowed's tri-state (spec §4.E).
func clampLicenses(requested, allowed IncludeLicenses) IncludeLicenses {
	if allowed == LicensesIncludeExtend {
		return requested
	}
	if allowed == LicensesNone {
		return LicensesNone
	}
	if requested == LicensesIncludeExtend {
		return allowed
	}
	if requested == allowed {
		return requested
	}
	return LicensesNone
}

// intersectString returns the common value when both sides declare the
// same non-empty string, else empty (spec §4.E: "region and jurisdiction
// are set to the intersection of both peers' declared values").
func intersectString(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	if a == b {
		return a
	}
	return ""
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
