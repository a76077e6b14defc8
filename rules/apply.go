package rules

import (
	"fmt"

	"github.com/tmarkus/hexzero/game"
)

// Apply executes an action and returns the resulting state. The input
// scenario is never mutated. Apply is deterministic: identical inputs
// always produce identical outputs.
//
// If the acting faction has exhausted its per-turn action cap, any
// requested move or build is overridden by a forced end-turn.
func Apply(s *game.Scenario, a game.Action) (*game.Scenario, error) {
	next := s.Clone()

	if a.Type != game.ActionEndTurn && next.Turn.ActionsTaken >= next.Limits.MaxActionsPerTurn {
		endTurn(next)
		return next, nil
	}

	switch a.Type {
	case game.ActionEndTurn:
		endTurn(next)
		return next, nil
	case game.ActionMove:
		if err := applyMove(next, a); err != nil {
			return nil, err
		}
	case game.ActionBuild:
		if err := applyBuild(next, a); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown action type %d", ErrIllegalAction, a.Type)
	}

	next.Turn.ActionsTaken++
	return next, nil
}

// endTurn hands play to the next faction, applies its start-of-turn
// economy and unlocks its soldiers.
func endTurn(s *game.Scenario) {
	if len(s.Factions) > 0 {
		s.Turn.Faction = (s.Turn.Faction + 1) % int8(len(s.Factions))
	}
	s.Turn.ActionsTaken = 0
	s.TurnCount++

	faction := s.Turn.Faction
	for _, p := range s.Provinces {
		if p.Faction != faction || !p.Active {
			continue
		}
		p.Resources += Income(s, p)
		if p.Resources < 0 {
			// Bankruptcy: the province cannot pay upkeep, its army starves.
			for _, idx := range p.Tiles {
				if s.Tiles[idx].Unit.IsSoldier() {
					s.Tiles[idx].Unit = game.UnitGravestone
					s.Tiles[idx].CanMove = false
				}
			}
			p.Resources = 0
		}
		for _, idx := range p.Tiles {
			if s.Tiles[idx].Unit.IsSoldier() {
				s.Tiles[idx].CanMove = true
			}
		}
	}
}

// Income is the province's per-turn resource delta: one per tile minus
// unit upkeep. Farms have negative upkeep and therefore add income.
func Income(s *game.Scenario, p *game.Province) int {
	income := 0
	for _, idx := range p.Tiles {
		income++
		income -= s.Tiles[idx].Unit.Upkeep()
	}
	return income
}

func applyMove(s *game.Scenario, a game.Action) error {
	if a.From < 0 || a.From >= len(s.Tiles) || a.To < 0 || a.To >= len(s.Tiles) {
		return fmt.Errorf("%w: move %d->%d out of range", ErrIllegalAction, a.From, a.To)
	}
	src := &s.Tiles[a.From]
	if !src.Unit.IsSoldier() || !src.CanMove || src.Owner != s.Turn.Faction {
		return fmt.Errorf("%w: no movable soldier on tile %d", ErrIllegalAction, a.From)
	}

	legal := false
	for _, d := range MoveDestinations(s, a.From) {
		if d == a.To {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %d is not a reachable destination from %d", ErrIllegalAction, a.To, a.From)
	}

	unit := src.Unit
	owner := src.Owner
	src.Unit = game.UnitNone
	src.CanMove = false

	dst := &s.Tiles[a.To]
	captured := dst.Owner != owner

	switch {
	case !captured && dst.Unit.IsSoldier():
		// Merge equal tiers into the next tier up.
		dst.Unit = game.SoldierByTier(unit.SoldierTier() + 1)
	default:
		dst.Unit = unit
	}
	dst.CanMove = false
	dst.Owner = owner

	if captured {
		rebuildProvinces(s)
	}
	return nil
}

func applyBuild(s *game.Scenario, a game.Action) error {
	if a.Tile < 0 || a.Tile >= len(s.Tiles) {
		return fmt.Errorf("%w: build tile %d out of range", ErrIllegalAction, a.Tile)
	}
	t := &s.Tiles[a.Tile]
	p := buildProvince(s, a.Tile)
	if p == nil {
		return fmt.Errorf("%w: no province of the acting faction can build on tile %d", ErrIllegalAction, a.Tile)
	}

	allowed := false
	for _, u := range BuildableUnits(s, a.Tile, p) {
		if u == a.Unit {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: cannot build %s on tile %d", ErrIllegalAction, a.Unit, a.Tile)
	}

	p.Resources -= a.Unit.BuildCost(countFarms(s, p))
	captured := t.Owner != p.Faction
	t.Owner = p.Faction
	t.Unit = a.Unit
	t.CanMove = false // freshly built soldiers act next turn

	if captured {
		rebuildProvinces(s)
	}
	return nil
}

// buildProvince resolves which province pays for a build on the tile: the
// tile's own province when the acting faction owns it, otherwise the acting
// faction's active province bordering the tile.
func buildProvince(s *game.Scenario, idx int) *game.Province {
	faction := s.Turn.Faction
	if s.Tiles[idx].Owner == faction {
		if p := s.ProvinceAt(idx); p != nil && p.Active {
			return p
		}
		return nil
	}
	var buf [6]int
	for _, n := range s.Neighbors(idx, buf[:0]) {
		if s.Tiles[n].Owner != faction {
			continue
		}
		if p := s.ProvinceAt(n); p != nil && p.Active {
			return p
		}
	}
	return nil
}

// rebuildProvinces recomputes province structure after an ownership change.
// Contiguous same-faction tile groups become provinces; each old treasury
// goes to the group holding the majority of its former tiles, merged groups
// sum their treasuries, and fragments below two tiles go inactive with a
// locked treasury. Every active province is guaranteed a capital.
func rebuildProvinces(s *game.Scenario) {
	old := s.Provinces

	// Flood fill owned tiles into contiguous groups.
	groupOf := make([]int, len(s.Tiles))
	for i := range groupOf {
		groupOf[i] = -1
	}
	var groups [][]int
	var buf [6]int
	for i := range s.Tiles {
		if s.Tiles[i].Owner == game.NoOwner || s.Tiles[i].Water || groupOf[i] != -1 {
			continue
		}
		id := len(groups)
		owner := s.Tiles[i].Owner
		stack := []int{i}
		groupOf[i] = id
		var members []int
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, cur)
			for _, n := range s.Neighbors(cur, buf[:0]) {
				if groupOf[n] == -1 && !s.Tiles[n].Water && s.Tiles[n].Owner == owner {
					groupOf[n] = id
					stack = append(stack, n)
				}
			}
		}
		groups = append(groups, members)
	}

	// Route each old treasury to the group with the largest overlap.
	resources := make([]int, len(groups))
	for _, p := range old {
		bestGroup, bestOverlap := -1, 0
		counts := make(map[int]int)
		for _, t := range p.Tiles {
			g := groupOf[t]
			if g == -1 || s.Tiles[t].Owner != p.Faction {
				continue
			}
			counts[g]++
			if counts[g] > bestOverlap || (counts[g] == bestOverlap && g < bestGroup) {
				bestOverlap = counts[g]
				bestGroup = g
			}
		}
		if bestGroup != -1 {
			resources[bestGroup] += p.Resources
		}
	}

	provinces := make([]*game.Province, 0, len(groups))
	for id, members := range groups {
		p := &game.Province{
			Faction:   s.Tiles[members[0]].Owner,
			Tiles:     members,
			Resources: resources[id],
			Active:    len(members) >= 2,
		}
		if !p.Active {
			p.Resources = 0
			// Inactive fragments lose their capital.
			for _, t := range members {
				if s.Tiles[t].Unit == game.UnitCapital {
					s.Tiles[t].Unit = game.UnitNone
				}
			}
		} else {
			ensureCapital(s, p)
		}
		provinces = append(provinces, p)
	}
	s.Provinces = provinces
}

// ensureCapital places a capital if the province lost its own, preferring
// the lowest-index empty tile, then a farm tile, then any tile.
func ensureCapital(s *game.Scenario, p *game.Province) {
	var empty, farm, any = -1, -1, -1
	for _, t := range p.Tiles {
		switch s.Tiles[t].Unit {
		case game.UnitCapital:
			return
		case game.UnitNone:
			if empty == -1 || t < empty {
				empty = t
			}
		case game.UnitFarm:
			if farm == -1 || t < farm {
				farm = t
			}
		}
		if any == -1 || t < any {
			any = t
		}
	}

	target := any
	if empty != -1 {
		target = empty
	} else if farm != -1 {
		target = farm
	}
	s.Tiles[target].Unit = game.UnitCapital
	s.Tiles[target].CanMove = false
}
