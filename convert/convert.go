// Package convert is the codec between the domain game state and the
// fixed-shape numeric representation the predictor and search operate on.
//
// It covers both directions for states (Encode/Decode on a CHW float32
// tensor) and actions (integer indices in [0, ActionSize) with a legality
// mask). All encodings are framed from the acting faction's perspective so
// that equivalent positions hash identically regardless of who is to play.
package convert

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/tmarkus/hexzero/game"
)

const (
	Width    = 6
	Height   = 6
	Channels = 23
	NumTiles = Width * Height

	BytesPerFloat = 4
	FloatSize     = Channels * Height * Width
	BufferSize    = FloatSize * BytesPerFloat

	// Normalization caps for the scalar channels.
	MaxResources = 200.0
	MaxIncome    = 50.0
)

// Channel layout (23 total):
// 0:     own tile ownership
// 1:     opponent tile ownership
// 2:     water
// 3..6:  own soldiers, tier 1-4
// 7..10: opponent soldiers, tier 1-4
// 11:    capital
// 12:    farm
// 13:    tower1
// 14:    tower2
// 15:    tree
// 16:    gravestone
// 17:    soldier can-move flag
// 18:    own resources (whole plane, normalized to [0,1])
// 19:    opponent resources
// 20:    own income (signed, normalized to [-1,1])
// 21:    opponent income
// 22:    rows 0-2 action counter, rows 3-5 turn counter (normalized)
const (
	chOwnership   = 0
	chWater       = 2
	chOwnSoldier  = 3
	chOppSoldier  = 7
	chCapital     = 11
	chFarm        = 12
	chTower1      = 13
	chTower2      = 14
	chTree        = 15
	chGravestone  = 16
	chCanMove     = 17
	chOwnRes      = 18
	chOppRes      = 19
	chOwnIncome   = 20
	chOppIncome   = 21
	chCounters    = 22
	counterSplit  = 3 // rows below this hold the action counter
)

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, FloatSize)
		return &b
	},
}

// GetFloatBuffer returns a tensor buffer from the pool.
func GetFloatBuffer() *[]float32 {
	return floatPool.Get().(*[]float32)
}

// PutFloatBuffer returns a tensor buffer to the pool.
func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}

func plane(c int) (start, end int) {
	start = c * Height * Width
	return start, start + Height*Width
}

// Encode converts a scenario into the canonical CHW tensor from the given
// faction's perspective: the perspective faction always occupies the "own"
// channel group. Encoding is deterministic; identical state and perspective
// produce byte-identical output.
//
// The returned buffer is pooled. Callers must release it with
// PutFloatBuffer when done.
func Encode(s *game.Scenario, perspective int8) *[]float32 {
	dataPtr := GetFloatBuffer()
	data := *dataPtr
	clear(data)

	set := func(c, idx int, val float32) {
		data[c*Height*Width+idx] = val
	}
	ownRes := normResources(s.FactionResources(perspective))
	oppRes := normResources(factionResourcesOther(s, perspective))
	ownInc := normIncome(factionIncome(s, perspective))
	oppInc := normIncome(factionIncomeOther(s, perspective))

	for idx := range s.Tiles {
		t := &s.Tiles[idx]

		if t.Water {
			set(chWater, idx, 1)
			continue
		}

		isOwn := t.Owner == perspective
		if t.Owner != game.NoOwner {
			if isOwn {
				set(chOwnership, idx, 1)
				set(chOwnRes, idx, ownRes)
				set(chOwnIncome, idx, ownInc)
			} else {
				set(chOwnership+1, idx, 1)
				set(chOppRes, idx, oppRes)
				set(chOppIncome, idx, oppInc)
			}
		}

		switch {
		case t.Unit.IsSoldier():
			base := chOppSoldier
			if isOwn {
				base = chOwnSoldier
			}
			set(base+t.Unit.SoldierTier()-1, idx, 1)
			if t.CanMove {
				set(chCanMove, idx, 1)
			}
		case t.Unit == game.UnitCapital:
			set(chCapital, idx, 1)
		case t.Unit == game.UnitFarm:
			set(chFarm, idx, 1)
		case t.Unit == game.UnitTower1:
			set(chTower1, idx, 1)
		case t.Unit == game.UnitTower2:
			set(chTower2, idx, 1)
		case t.Unit == game.UnitTree:
			set(chTree, idx, 1)
		case t.Unit == game.UnitGravestone:
			set(chGravestone, idx, 1)
		}
	}

	// Counters ride in a single channel: action counter on the top rows,
	// turn counter on the bottom rows.
	actionNorm := float32(0)
	if s.Limits.MaxActionsPerTurn > 0 {
		actionNorm = float32(s.Turn.ActionsTaken) / float32(s.Limits.MaxActionsPerTurn)
	}
	turnNorm := float32(0)
	if s.Limits.MaxGameTurns > 0 {
		turnNorm = float32(s.TurnCount) / float32(s.Limits.MaxGameTurns)
		if turnNorm > 1 {
			turnNorm = 1
		}
	}
	start, _ := plane(chCounters)
	for row := 0; row < Height; row++ {
		val := turnNorm
		if row < counterSplit {
			val = actionNorm
		}
		for col := 0; col < Width; col++ {
			data[start+row*Width+col] = val
		}
	}

	return dataPtr
}

// Flip swaps the own/opponent channel groups in place, converting a tensor
// encoded from one faction's perspective into the other's. It is a pure
// channel permutation and never consults the rule engine.
func Flip(data []float32) {
	swapPlane := func(a, b int) {
		as, _ := plane(a)
		bs, _ := plane(b)
		for i := 0; i < Height*Width; i++ {
			data[as+i], data[bs+i] = data[bs+i], data[as+i]
		}
	}

	swapPlane(chOwnership, chOwnership+1)
	for tier := 0; tier < 4; tier++ {
		swapPlane(chOwnSoldier+tier, chOppSoldier+tier)
	}
	swapPlane(chOwnRes, chOppRes)
	swapPlane(chOwnIncome, chOppIncome)
}

// StateKey returns a deterministic string key for a tensor, suitable for
// hashing search nodes. The key is the little-endian byte image of the
// tensor.
func StateKey(data []float32) string {
	buf := make([]byte, len(data)*BytesPerFloat)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*BytesPerFloat:], math.Float32bits(v))
	}
	return string(buf)
}

func normResources(r int) float32 {
	v := float32(r) / MaxResources
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

func normIncome(inc int) float32 {
	v := float32(inc) / MaxIncome
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return v
}

func factionResourcesOther(s *game.Scenario, perspective int8) int {
	total := 0
	for f := range s.Factions {
		if int8(f) != perspective {
			total += s.FactionResources(int8(f))
		}
	}
	return total
}

func factionIncome(s *game.Scenario, faction int8) int {
	total := 0
	for _, p := range s.Provinces {
		if p.Faction == faction && p.Active {
			total += provinceIncome(s, p)
		}
	}
	return total
}

func factionIncomeOther(s *game.Scenario, perspective int8) int {
	total := 0
	for f := range s.Factions {
		if int8(f) != perspective {
			total += factionIncome(s, int8(f))
		}
	}
	return total
}

func provinceIncome(s *game.Scenario, p *game.Province) int {
	income := 0
	for _, idx := range p.Tiles {
		income++
		income -= s.Tiles[idx].Unit.Upkeep()
	}
	return income
}
