package convert

import (
	"errors"
	"fmt"

	"github.com/tmarkus/hexzero/game"
)

var (
	// ErrInvalidEncodingInput reports malformed codec inputs such as
	// out-of-range tile, offset or unit indices. These are programmer
	// errors and fail fast.
	ErrInvalidEncodingInput = errors.New("invalid encoding input")

	// ErrUnknownActionIndex reports a decode of an action index outside
	// [0, ActionSize).
	ErrUnknownActionIndex = errors.New("unknown action index")

	// ErrEncodingMismatch reports a tensor whose channels are structurally
	// inconsistent (e.g. a tile owned by both factions). Callers should
	// fall back to re-deriving state from the rule engine instead of
	// trusting the decode.
	ErrEncodingMismatch = errors.New("encoding mismatch")
)

// Decode reconstructs a best-effort scenario from a canonical tensor. The
// result is framed from the tensor's perspective: the "own" channel group
// becomes faction 0, which is also the faction to play.
//
// Decoding is lossy on normalized scalar channels (resources and income
// round-trip within a bounded epsilon) and simplified structurally: all of
// a faction's tiles are collected into a single province, as the tensor
// does not record province boundaries. Ownership and unit placement
// round-trip exactly.
func Decode(data []float32, limits game.Limits) (*game.Scenario, error) {
	if len(data) != FloatSize {
		return nil, fmt.Errorf("%w: tensor has %d floats, want %d", ErrInvalidEncodingInput, len(data), FloatSize)
	}

	s := game.Empty(Width, []string{"own", "opponent"}, limits)

	at := func(c, idx int) float32 {
		return data[c*Height*Width+idx]
	}
	on := func(c, idx int) bool {
		return at(c, idx) > 0.5
	}

	ownTiles := make([]int, 0, NumTiles)
	oppTiles := make([]int, 0, NumTiles)

	for idx := 0; idx < NumTiles; idx++ {
		t := &s.Tiles[idx]

		if on(chWater, idx) {
			t.Water = true
			t.Owner = game.NoOwner
			continue
		}

		ownOwned := on(chOwnership, idx)
		oppOwned := on(chOwnership+1, idx)
		switch {
		case ownOwned && oppOwned:
			return nil, fmt.Errorf("%w: tile %d owned by both factions", ErrEncodingMismatch, idx)
		case ownOwned:
			t.Owner = 0
			ownTiles = append(ownTiles, idx)
		case oppOwned:
			t.Owner = 1
			oppTiles = append(oppTiles, idx)
		}

		unit, err := unitAt(data, idx, t.Owner)
		if err != nil {
			return nil, err
		}
		t.Unit = unit
		if unit.IsSoldier() {
			t.CanMove = on(chCanMove, idx)
		}
	}

	s.Provinces = append(s.Provinces,
		decodeProvince(0, ownTiles, scalarOn(data, chOwnRes, ownTiles)),
		decodeProvince(1, oppTiles, scalarOn(data, chOppRes, oppTiles)),
	)

	// Counters: top rows carry the action counter, bottom rows the turn
	// counter. Round to nearest to absorb float error.
	s.Turn.Faction = 0
	s.Turn.ActionsTaken = int(at(chCounters, 0)*float32(limits.MaxActionsPerTurn) + 0.5)
	s.TurnCount = int(at(chCounters, counterSplit*Width)*float32(limits.MaxGameTurns) + 0.5)

	return s, nil
}

// unitAt extracts the unit on a tile, verifying that at most one unit
// channel is set and that soldier ownership agrees with tile ownership.
func unitAt(data []float32, idx int, owner int8) (game.UnitType, error) {
	on := func(c int) bool {
		return data[c*Height*Width+idx] > 0.5
	}

	unit := game.UnitNone
	found := 0

	for tier := 0; tier < 4; tier++ {
		if on(chOwnSoldier + tier) {
			if owner != 0 {
				return 0, fmt.Errorf("%w: own soldier on tile %d not owned by own faction", ErrEncodingMismatch, idx)
			}
			unit = game.SoldierByTier(tier + 1)
			found++
		}
		if on(chOppSoldier + tier) {
			if owner != 1 {
				return 0, fmt.Errorf("%w: opponent soldier on tile %d not owned by opponent", ErrEncodingMismatch, idx)
			}
			unit = game.SoldierByTier(tier + 1)
			found++
		}
	}

	structures := []struct {
		ch int
		u  game.UnitType
	}{
		{chCapital, game.UnitCapital},
		{chFarm, game.UnitFarm},
		{chTower1, game.UnitTower1},
		{chTower2, game.UnitTower2},
		{chTree, game.UnitTree},
		{chGravestone, game.UnitGravestone},
	}
	for _, st := range structures {
		if on(st.ch) {
			unit = st.u
			found++
		}
	}

	if found > 1 {
		return 0, fmt.Errorf("%w: tile %d has %d units", ErrEncodingMismatch, idx, found)
	}
	return unit, nil
}

// scalarOn denormalizes a resource plane by sampling the first owned tile.
func scalarOn(data []float32, ch int, tiles []int) int {
	if len(tiles) == 0 {
		return 0
	}
	return int(data[ch*Height*Width+tiles[0]]*MaxResources + 0.5)
}

func decodeProvince(faction int8, tiles []int, resources int) *game.Province {
	p := &game.Province{
		Faction:   faction,
		Tiles:     tiles,
		Resources: resources,
		Active:    len(tiles) >= 2,
	}
	if !p.Active {
		p.Resources = 0
	}
	return p
}
