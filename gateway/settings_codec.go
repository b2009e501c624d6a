package gateway

import (
	"github.com/mirrorworlds/worldmesh/engine/netutil"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/world"
)

// The settings block is the last element of its message. The leading fields
// are fixed; fields added in later protocol revisions form an optional tail
// so both sides can run different revisions: a reader of a short block keeps
// its defaults for the missing tail, a reader of a long block ignores the
// excess. gameMode is the newest tail field and therefore comes last.

// AppendSettings writes the settings block onto the packet
func AppendSettings(p *netutil.Packet, s *world.Settings) {
	p.AppendBool(s.Pvp)
	p.AppendBool(s.MobSpawning)
	p.AppendBool(s.TimeCycle)
	p.AppendInt64(s.FixedTime)
	p.AppendBool(s.Weather)
	p.AppendBool(s.Physics)
	p.AppendBool(s.Redstone)
	p.AppendBool(s.FluidFlow)
	p.AppendInt32(s.TickSpeed)
	// optional tail
	p.AppendBool(s.KeepInventory)
	p.AppendBool(s.AnnounceDeaths)
	p.AppendBool(s.FallDamage)
	p.AppendBool(s.HungerDepletion)
	p.AppendBool(s.FireSpread)
	p.AppendBool(s.LeafDecay)
	p.AppendBool(s.BlockUpdates)
	p.AppendVarStr(string(s.GameMode))
}

// ReadSettings reads a settings block, starting from the defaults and
// overwriting whatever fields the block carries
func ReadSettings(p *netutil.Packet, defaults world.Settings) world.Settings {
	s := defaults

	s.Pvp = p.ReadBool()
	s.MobSpawning = p.ReadBool()
	s.TimeCycle = p.ReadBool()
	s.FixedTime = p.ReadInt64()
	s.Weather = p.ReadBool()
	s.Physics = p.ReadBool()
	s.Redstone = p.ReadBool()
	s.FluidFlow = p.ReadBool()
	s.TickSpeed = p.ReadInt32()

	for _, field := range []*bool{
		&s.KeepInventory,
		&s.AnnounceDeaths,
		&s.FallDamage,
		&s.HungerDepletion,
		&s.FireSpread,
		&s.LeafDecay,
		&s.BlockUpdates,
	} {
		if !p.HasUnreadPayload() {
			return s
		}
		*field = p.ReadBool()
	}

	if p.HasUnreadPayload() {
		if mode, ok := world.ParseGameMode(p.ReadVarStr()); ok {
			s.GameMode = mode
		} else {
			wmlog.Warnf("gateway: unknown game mode in settings block, keeping %s", s.GameMode)
		}
	}

	return s
}
