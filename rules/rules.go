// Package rules implements the game rule engine: legal action enumeration,
// deterministic state transitions and terminal detection.
//
// The search layer consumes this package exclusively through LegalActions,
// Apply and Outcome; it never mutates a Scenario directly.
package rules

import (
	"errors"
	"sort"

	"github.com/tmarkus/hexzero/game"
)

// ErrIllegalAction is returned by Apply when the requested action is not
// legal in the given state.
var ErrIllegalAction = errors.New("illegal action")

// MoveRange is how many steps a soldier travels through friendly territory
// in one move. The final step may cross the province border.
const MoveRange = 4

// BuildableUnitTypes lists every unit a province can build, in action-space
// order.
var BuildableUnitTypes = [...]game.UnitType{
	game.UnitSoldier1,
	game.UnitSoldier2,
	game.UnitSoldier3,
	game.UnitSoldier4,
	game.UnitFarm,
	game.UnitTower1,
	game.UnitTower2,
}

// LegalActions enumerates every action the acting faction may take.
// End-turn is always legal, so the result is never empty for a well-formed
// state. Once the per-turn action cap is reached only end-turn remains.
func LegalActions(s *game.Scenario) []game.Action {
	actions := []game.Action{game.EndTurn()}

	if len(s.Factions) == 0 || int(s.Turn.Faction) >= len(s.Factions) {
		return actions
	}
	if s.Turn.ActionsTaken >= s.Limits.MaxActionsPerTurn {
		return actions
	}

	faction := s.Turn.Faction
	for _, p := range s.Provinces {
		if p.Faction != faction || !p.Active {
			continue
		}
		for _, idx := range p.Tiles {
			t := &s.Tiles[idx]
			if t.Unit.IsSoldier() && t.CanMove {
				for _, dst := range MoveDestinations(s, idx) {
					actions = append(actions, game.Move(idx, dst))
				}
			}
			for _, u := range BuildableUnits(s, idx, p) {
				actions = append(actions, game.Build(idx, u))
			}
		}
		// Soldiers can also be built straight onto capturable border tiles.
		for _, idx := range provinceFrontier(s, p) {
			for _, u := range BuildableUnits(s, idx, p) {
				actions = append(actions, game.Build(idx, u))
			}
		}
	}

	return actions
}

// MoveDestinations returns the tiles the soldier on from may move to:
// every tile reachable within MoveRange steps through its own province,
// plus one boundary step onto a capturable enemy or neutral tile.
func MoveDestinations(s *game.Scenario, from int) []int {
	t := &s.Tiles[from]
	if !t.Unit.IsSoldier() {
		return nil
	}
	owner := t.Owner
	tier := t.Unit.SoldierTier()

	// BFS through same-owner land tiles.
	dist := map[int]int{from: 0}
	queue := []int{from}
	var buf [6]int
	var dests []int
	seen := map[int]bool{}

	consider := func(idx int) {
		if seen[idx] || idx == from {
			return
		}
		seen[idx] = true
		if canOccupy(s, idx, owner, tier) {
			dests = append(dests, idx)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		for _, n := range s.Neighbors(cur, buf[:0]) {
			nt := &s.Tiles[n]
			if nt.Water {
				continue
			}
			if nt.Owner == owner {
				if d+1 > MoveRange {
					continue
				}
				if _, ok := dist[n]; !ok {
					dist[n] = d + 1
					queue = append(queue, n)
				}
				consider(n)
			} else {
				// Boundary step off any reached friendly tile.
				consider(n)
			}
		}
	}

	return dests
}

// canOccupy reports whether a soldier of the given tier and owner may end
// its move on the tile.
func canOccupy(s *game.Scenario, idx int, owner int8, tier int) bool {
	t := &s.Tiles[idx]
	if t.Water {
		return false
	}

	if t.Owner == owner {
		switch {
		case t.Unit == game.UnitNone, t.Unit == game.UnitTree, t.Unit == game.UnitGravestone:
			return true
		case t.Unit.IsSoldier():
			// Merge: equal tiers combine into the next tier, capped at 4.
			return t.Unit.SoldierTier() == tier && tier < 4
		default:
			return false
		}
	}

	// Capturing: attack must exceed the tile's protection. Tier 4 is the
	// exception that can take an equally protected tile, so tier 4 soldiers
	// can destroy each other.
	prot := Protection(s, idx)
	if tier > prot {
		return true
	}
	return tier == 4 && prot == 4
}

// Protection is the defensive strength of a tile: the strongest defense
// among its own unit and same-owner units on adjacent tiles. Neutral tiles
// are defended only by whatever stands on them.
func Protection(s *game.Scenario, idx int) int {
	t := &s.Tiles[idx]
	prot := t.Unit.DefensePower()
	if t.Owner == game.NoOwner {
		return prot
	}

	var buf [6]int
	for _, n := range s.Neighbors(idx, buf[:0]) {
		nt := &s.Tiles[n]
		if nt.Owner != t.Owner {
			continue
		}
		if d := nt.Unit.DefensePower(); d > prot {
			prot = d
		}
	}
	return prot
}

// BuildableUnits returns the units the province can afford to place on the
// tile. Empty owned tiles accept any unit type; tiles outside the province
// accept only soldiers strong enough to capture them.
func BuildableUnits(s *game.Scenario, idx int, p *game.Province) []game.UnitType {
	t := &s.Tiles[idx]
	if t.Water {
		return nil
	}
	if t.Owner == p.Faction && t.Unit != game.UnitNone {
		return nil
	}

	farms := countFarms(s, p)

	var out []game.UnitType
	for _, u := range BuildableUnitTypes {
		if p.Resources < u.BuildCost(farms) {
			continue
		}
		if t.Owner != p.Faction {
			if !u.IsSoldier() {
				continue
			}
			tier := u.SoldierTier()
			if prot := Protection(s, idx); tier <= prot && !(tier == 4 && prot == 4) {
				continue
			}
		}
		out = append(out, u)
	}
	return out
}

func countFarms(s *game.Scenario, p *game.Province) int {
	farms := 0
	for _, idx := range p.Tiles {
		if s.Tiles[idx].Unit == game.UnitFarm {
			farms++
		}
	}
	return farms
}

// provinceFrontier lists the non-owned land tiles adjacent to the province,
// each once, in ascending tile order.
func provinceFrontier(s *game.Scenario, p *game.Province) []int {
	seen := map[int]bool{}
	var buf [6]int
	var out []int
	for _, idx := range p.Tiles {
		for _, n := range s.Neighbors(idx, buf[:0]) {
			nt := &s.Tiles[n]
			if nt.Water || nt.Owner == p.Faction || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
