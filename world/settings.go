package world

import (
	"strings"

	"github.com/mirrorworlds/worldmesh/engine/config"
)

// GameMode is the game mode a world runs in
type GameMode string

// Known game modes
const (
	GameModeSurvival  GameMode = "survival"
	GameModeCreative  GameMode = "creative"
	GameModeAdventure GameMode = "adventure"
	GameModeSpectator GameMode = "spectator"
)

// DefaultGameMode is the safe default used when a persisted or received game
// mode string is unknown
const DefaultGameMode = GameModeSurvival

// ParseGameMode parses a game mode string case-insensitively
func ParseGameMode(s string) (GameMode, bool) {
	switch GameMode(strings.ToLower(s)) {
	case GameModeSurvival:
		return GameModeSurvival, true
	case GameModeCreative:
		return GameModeCreative, true
	case GameModeAdventure:
		return GameModeAdventure, true
	case GameModeSpectator:
		return GameModeSpectator, true
	}
	return DefaultGameMode, false
}

// Settings is the per-world environment configuration. It is a plain value
// type: assigning a Settings copies every field, so a record's settings never
// alias the default template or another record's settings.
type Settings struct {
	GameMode        GameMode
	Pvp             bool
	MobSpawning     bool
	TimeCycle       bool
	FixedTime       int64 // world time when TimeCycle is off, in [0, 24000)
	Weather         bool
	Physics         bool
	Redstone        bool
	FluidFlow       bool
	TickSpeed       int32
	KeepInventory   bool
	AnnounceDeaths  bool
	FallDamage      bool
	HungerDepletion bool
	FireSpread      bool
	LeafDecay       bool
	BlockUpdates    bool
}

// DefaultSettings builds the settings template from the [defaults] config section
func DefaultSettings(cfg *config.WorldDefaultsConfig) Settings {
	gameMode, _ := ParseGameMode(cfg.GameMode)
	return Settings{
		GameMode:        gameMode,
		Pvp:             cfg.Pvp,
		MobSpawning:     cfg.MobSpawning,
		TimeCycle:       cfg.TimeCycle,
		FixedTime:       cfg.FixedTime,
		Weather:         cfg.Weather,
		Physics:         cfg.Physics,
		Redstone:        cfg.Redstone,
		FluidFlow:       cfg.FluidFlow,
		TickSpeed:       cfg.TickSpeed,
		KeepInventory:   cfg.KeepInventory,
		AnnounceDeaths:  cfg.AnnounceDeaths,
		FallDamage:      cfg.FallDamage,
		HungerDepletion: cfg.HungerDepletion,
		FireSpread:      cfg.FireSpread,
		LeafDecay:       cfg.LeafDecay,
		BlockUpdates:    cfg.BlockUpdates,
	}
}

// Validate checks the single cross-field invariant: a fixed time is only
// meaningful when the time cycle is stopped, and must be a valid world time
func (s *Settings) Validate() bool {
	if !s.TimeCycle && (s.FixedTime < 0 || s.FixedTime >= 24000) {
		return false
	}
	return s.TickSpeed >= 0
}
