package xid

import (
	"strings"
	"testing"
)

func TestNewPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("trx")
		if !strings.HasPrefix(id, "trx-") {
			t.Fatalf("expected trx- prefix, got %q", id)
		}
		if len(id) != len("trx-")+32 {
			t.Fatalf("unexpected id length for %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}

	if bare := New(""); strings.Contains(bare, "-") {
		t.Fatalf("expected bare hex id, got %q", bare)
	}
}
