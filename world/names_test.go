package world

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenInternalName(t *testing.T) {
	pattern := regexp.MustCompile(`^wm_[0-9a-f]{8}$`)
	for i := 0; i < 100; i++ {
		name := GenInternalName()
		if !pattern.MatchString(name) {
			t.Fatalf("bad internal name: %s", name)
		}
		if !strings.HasPrefix(name, InternalNamePrefix) {
			t.Fatalf("internal name %s misses prefix %s", name, InternalNamePrefix)
		}
		if !IsSafeName(name) {
			t.Fatalf("generated internal name %s is not safe", name)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	for _, name := range []string{"wm_a1b2c3d4", "world", "My-World_2", "a.b"} {
		if !IsSafeName(name) {
			t.Errorf("%q should be safe", name)
		}
	}

	for _, name := range []string{"", ".", "..", "../evil", "a/b", "a\\b", "wm_a1b2 c3", "wörld", "a:b"} {
		if IsSafeName(name) {
			t.Errorf("%q should not be safe", name)
		}
	}
}
