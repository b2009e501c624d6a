package world

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mirrorworlds/worldmesh/engine/ds"
)

// PlayerID is an opaque player identity as reported by the proxy
type PlayerID string

// DefaultIcon is the safe default used when a persisted or received icon
// identifier is unknown
const DefaultIcon = "GRASS_BLOCK"

var iconPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// IsValidIcon reports whether s looks like a symbolic item-type identifier
func IsValidIcon(s string) bool {
	return iconPattern.MatchString(s)
}

// SpawnPoint is a world-relative spawn coordinate. It is only valid for the
// world whose internal name it carries.
type SpawnPoint struct {
	World string
	X     float64
	Y     float64
	Z     float64
	Yaw   float32
	Pitch float32
}

// Record is the registry entry of one managed world: identity, ownership,
// settings, trust list and spawn point. The lifecycle manager's in-memory
// registry exclusively owns each Record; the persistence store keeps a
// serialized mirror, not a live reference.
type Record struct {
	ID             int64  // -1 until persisted, then database-assigned
	DisplayName    string // user-facing, mutable
	InternalName   string // globally unique, immutable, the physical world identifier
	OwnerID        PlayerID
	Icon           string
	StoragePath    string // optional subpath under the storage root
	Settings       Settings
	TrustedPlayers ds.StringSet
	SpawnPoint     *SpawnPoint
	CreatedAt      time.Time
}

// NewRecord creates an unpersisted record with a freshly generated internal
// name, inheriting a copy of the template settings
func NewRecord(displayName string, ownerID PlayerID, icon string, template Settings) *Record {
	return &Record{
		ID:             -1,
		DisplayName:    displayName,
		InternalName:   GenInternalName(),
		OwnerID:        ownerID,
		Icon:           icon,
		Settings:       template, // value copy, never aliases the template
		TrustedPlayers: ds.StringSet{},
		CreatedAt:      time.Now(),
	}
}

func (r *Record) String() string {
	return fmt.Sprintf("Record<%s|%s>", r.InternalName, r.DisplayName)
}

// IsPersisted reports whether the record has been assigned a database id
func (r *Record) IsPersisted() bool {
	return r.ID != -1
}

// IsTrusted reports whether the player is on the trust list (the owner is
// not implicitly trusted, use CanAccess)
func (r *Record) IsTrusted(playerID PlayerID) bool {
	return r.TrustedPlayers.Contains(string(playerID))
}

// Trust adds the player to the trust list, reporting whether the list changed
func (r *Record) Trust(playerID PlayerID) bool {
	if playerID == r.OwnerID || r.IsTrusted(playerID) {
		return false
	}
	r.TrustedPlayers.Add(string(playerID))
	return true
}

// Untrust removes the player from the trust list, reporting whether the list changed
func (r *Record) Untrust(playerID PlayerID) bool {
	if !r.IsTrusted(playerID) {
		return false
	}
	r.TrustedPlayers.Remove(string(playerID))
	return true
}

// CanAccess reports whether the player is the owner or trusted
func (r *Record) CanAccess(playerID PlayerID) bool {
	return playerID == r.OwnerID || r.IsTrusted(playerID)
}

// SetSpawnPoint records the spawn point; it must carry this record's world
func (r *Record) SetSpawnPoint(sp SpawnPoint) bool {
	if sp.World != r.InternalName {
		return false
	}
	r.SpawnPoint = &sp
	return true
}
