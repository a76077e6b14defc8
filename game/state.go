// Package game defines the core domain types for the hex territory game.
//
// These types represent the minimal state needed for rules evaluation and
// neural network inference. The state is designed to be efficiently clonable
// for MCTS tree exploration.
package game

// NoOwner marks a tile that belongs to no faction.
const NoOwner = int8(-1)

// Tile is a single hex cell. Tiles are addressed by index (row*size+col)
// into Scenario.Tiles.
type Tile struct {
	Row, Col int16
	Water    bool
	Owner    int8 // faction index, NoOwner if unowned
	Unit     UnitType
	CanMove  bool // soldiers only: true if the unit may still act this turn
}

// Province is a contiguous group of tiles controlled by a single faction.
// A province with fewer than two tiles is inactive: it has no capital, its
// treasury is locked at zero, and it cannot act until merged back into an
// active province of the same faction.
type Province struct {
	Faction   int8
	Tiles     []int
	Resources int
	Active    bool
}

// TurnContext tracks whose turn it is and how many move/build actions the
// acting faction has taken this turn. Once ActionsTaken reaches the
// per-turn cap the rules force an end-turn regardless of the requested
// action.
type TurnContext struct {
	Faction      int8
	ActionsTaken int
}

// Limits bounds game length. MaxActionsPerTurn caps move/build actions in a
// single turn; MaxGameTurns is the global ceiling after which the game is
// scored as a draw. Both exist to keep tree search depth finite.
type Limits struct {
	MaxActionsPerTurn int
	MaxGameTurns      int
}

// DefaultLimits matches the self-play training configuration.
func DefaultLimits() Limits {
	return Limits{MaxActionsPerTurn: 1, MaxGameTurns: 50}
}

// Scenario is the complete game state: board tiles, faction provinces,
// turn bookkeeping and the limits in force for this game.
type Scenario struct {
	Size      int
	Tiles     []Tile
	Factions  []string
	Provinces []*Province
	Turn      TurnContext
	TurnCount int
	Limits    Limits
}

// Index converts (row, col) to a tile index.
func (s *Scenario) Index(row, col int) int {
	return row*s.Size + col
}

// At returns the tile at (row, col).
func (s *Scenario) At(row, col int) *Tile {
	return &s.Tiles[row*s.Size+col]
}

// FactionProvinces returns all provinces owned by the given faction.
func (s *Scenario) FactionProvinces(faction int8) []*Province {
	var out []*Province
	for _, p := range s.Provinces {
		if p.Faction == faction {
			out = append(out, p)
		}
	}
	return out
}

// ProvinceAt returns the province containing the tile, or nil.
func (s *Scenario) ProvinceAt(idx int) *Province {
	owner := s.Tiles[idx].Owner
	if owner == NoOwner {
		return nil
	}
	for _, p := range s.Provinces {
		if p.Faction != owner {
			continue
		}
		for _, t := range p.Tiles {
			if t == idx {
				return p
			}
		}
	}
	return nil
}

// FactionResources sums the treasuries of a faction's active provinces.
func (s *Scenario) FactionResources(faction int8) int {
	total := 0
	for _, p := range s.Provinces {
		if p.Faction == faction && p.Active {
			total += p.Resources
		}
	}
	return total
}

// Clone performs a deep copy of the scenario.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}

	out := &Scenario{
		Size:      s.Size,
		Turn:      s.Turn,
		TurnCount: s.TurnCount,
		Limits:    s.Limits,
	}

	out.Tiles = make([]Tile, len(s.Tiles))
	copy(out.Tiles, s.Tiles)

	if len(s.Factions) > 0 {
		out.Factions = make([]string, len(s.Factions))
		copy(out.Factions, s.Factions)
	}

	if len(s.Provinces) > 0 {
		out.Provinces = make([]*Province, len(s.Provinces))
		for i, p := range s.Provinces {
			cp := &Province{
				Faction:   p.Faction,
				Resources: p.Resources,
				Active:    p.Active,
			}
			if len(p.Tiles) > 0 {
				cp.Tiles = make([]int, len(p.Tiles))
				copy(cp.Tiles, p.Tiles)
			}
			out.Provinces[i] = cp
		}
	}

	return out
}
