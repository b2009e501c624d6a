package world

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

// InternalNamePrefix prefixes every generated internal world name
const InternalNamePrefix = "wm_"

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// GenInternalName generates a new globally unique internal world name:
// the prefix plus 8 random hex chars
func GenInternalName() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		wmlog.Panicf("GenInternalName: %v", err)
	}
	return InternalNamePrefix + hex.EncodeToString(b[:])
}

// IsSafeName reports whether s is safe to join onto a filesystem path:
// alphanumeric, underscore, dot and hyphen only, and not a relative
// directory reference. Every path-bearing input must pass this check before
// any filesystem interaction.
func IsSafeName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return safeNamePattern.MatchString(s)
}
