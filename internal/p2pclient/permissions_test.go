package p2pclient

import (
	"errors"
	"testing"
)

func TestCheckStoreAllowed(t *testing.T) {
	remote := []byte("remote-key")
	src, tgt, err := CheckStore(Permissions{Store: StorePermissions{AllowStore: true}}, remote)
	if err != nil {
		t.Fatalf("CheckStore: %v", err)
	}
	if string(src) != "remote-key" || string(tgt) != "remote-key" {
		t.Fatalf("expected source=target=remote, got %s/%s", src, tgt)
	}
}

func TestCheckStoreDenied(t *testing.T) {
	_, _, err := CheckStore(Permissions{}, []byte("remote"))
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestCheckStoreUncheckedAccess(t *testing.T) {
	_, _, err := CheckStore(Permissions{AllowUncheckedAccess: true}, []byte("remote"))
	if err != nil {
		t.Fatalf("expected unchecked access to bypass the allowStore flag: %v", err)
	}
}

func TestCheckFetchNodeTypePrefixMatch(t *testing.T) {
	perms := Permissions{Fetch: FetchPermissions{AllowNodeTypes: [][]byte{{0x01, 0x02}}}}
	_, err := CheckFetch(perms, Permissions{}, FetchQuery{NodeTypes: [][]byte{{0x01, 0x02, 0x03}}})
	if err != nil {
		t.Fatalf("expected prefix match to pass: %v", err)
	}
	_, err = CheckFetch(perms, Permissions{}, FetchQuery{NodeTypes: [][]byte{{0x09}}})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for non-matching nodeType, got %v", err)
	}
}

func TestCheckFetchTriggerRequiresPermission(t *testing.T) {
	perms := Permissions{Fetch: FetchPermissions{AllowTrigger: false}}
	_, err := CheckFetch(perms, Permissions{}, FetchQuery{TriggerInterval: 30})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected trigger without allowTrigger to be denied, got %v", err)
	}
}

func TestCheckFetchAlgoAllowlist(t *testing.T) {
	perms := Permissions{Fetch: FetchPermissions{AllowAlgos: []string{"Sorted"}}}
	if _, err := CheckFetch(perms, Permissions{}, FetchQuery{Algo: "Sorted"}); err != nil {
		t.Fatalf("expected Sorted to be allowed: %v", err)
	}
	if _, err := CheckFetch(perms, Permissions{}, FetchQuery{Algo: "RefId"}); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected RefId to be denied, got %v", err)
	}
}

func TestClampLicenses(t *testing.T) {
	cases := []struct {
		requested, allowed, want IncludeLicenses
	}{
		{LicensesInclude, LicensesIncludeExtend, LicensesInclude},
		{LicensesIncludeExtend, LicensesExtend, LicensesExtend},
		{LicensesInclude, LicensesExtend, LicensesNone},
		{LicensesInclude, LicensesNone, LicensesNone},
		{LicensesExtend, LicensesExtend, LicensesExtend},
	}
	for _, c := range cases {
		if got := clampLicenses(c.requested, c.allowed); got != c.want {
			t.Errorf("clampLicenses(%v, %v) = %v, want %v", c.requested, c.allowed, got, c.want)
		}
	}
}

func TestIntersectEmbedDeduplicates(t *testing.T) {
	allowed := []EmbedFilter{{NodeType: []byte("msg")}}
	requested := []EmbedFilter{{NodeType: []byte("msg")}, {NodeType: []byte("msg")}, {NodeType: []byte("other")}}
	out := intersectEmbed(requested, allowed)
	if len(out) != 1 {
		t.Fatalf("expected deduplication to 1 entry, got %d", len(out))
	}
}

func TestIntersectString(t *testing.T) {
	if got := intersectString("EU", "EU"); got != "EU" {
		t.Fatalf("expected EU, got %q", got)
	}
	if got := intersectString("EU", "US"); got != "" {
		t.Fatalf("expected empty on mismatch, got %q", got)
	}
	if got := intersectString("", "US"); got != "" {
		t.Fatalf("expected empty when one side unset, got %q", got)
	}
}

func TestPermissionStoreCaches(t *testing.T) {
	calls := 0
	store := NewPermissionStore(func(peerID string) (Permissions, error) {
		calls++
		return Permissions{Region: "EU"}, nil
	})
	if _, err := store.Get("peer-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("peer-a"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected a single authoritative lookup, got %d", calls)
	}
	store.Invalidate("peer-a")
	if _, err := store.Get("peer-a"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected a re-lookup after Invalidate, got %d calls", calls)
	}
}
