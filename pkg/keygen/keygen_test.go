package keygen

import (
	"sort"
	"testing"
	"time"
)

func TestNewKeyUnique(t *testing.T) {
	seen := make(map[Key]bool)
	for i := 0; i < 1000; i++ {
		k := NewKey()
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
}

func TestKeysSortChronologically(t *testing.T) {
	keys := make([]Key, 0, 20)
	for i := 0; i < 20; i++ {
		keys = append(keys, NewKey())
		time.Sleep(2 * time.Millisecond)
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("keys not in chronological order: %v", keys)
	}
}

func TestTimeOf(t *testing.T) {
	before := time.Now().Add(-time.Second)
	k := NewKey()
	after := time.Now().Add(time.Second)

	ts := TimeOf(k)
	if ts.Before(before) || ts.After(after) {
		t.Fatalf("embedded time %v outside [%v, %v]", ts, before, after)
	}

	if !TimeOf("not-a-key").IsZero() {
		t.Fatal("expected zero time for a malformed key")
	}
}

func TestValid(t *testing.T) {
	if !Valid(NewKey()) {
		t.Fatal("fresh key must validate")
	}
	if Valid("garbage") {
		t.Fatal("garbage must not validate")
	}
	// Random v4 ids are not time-ordered keys.
	if Valid("8b28f0d2-9d58-4cbb-9ecb-9f1c6a34e0a7") {
		t.Fatal("v4 uuid must not validate")
	}
}
