package network

import "testing"

func TestUidShort(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := NewUid().Short()
		if len(s) != shortUid {
			t.Fatalf("short id %q", s)
		}
		if seen[s] {
			t.Fatalf("short id %v is taken", s)
		}
		seen[s] = true
	}
	if got := Uid("abc").Short(); got != "abc" {
		t.Errorf("short of abc = %v", got)
	}
}
