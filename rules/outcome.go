package rules

import "github.com/tmarkus/hexzero/game"

// Result describes whether and how a game has ended.
type Result struct {
	Over   bool
	Draw   bool
	Winner int8 // valid only when Over && !Draw
}

// Outcome reports the terminal status of a state. A game ends when at most
// one faction still holds an active province, or when the global turn
// ceiling is reached, in which case the game is scored as a draw. The
// ceiling exists because passive positions with multi-action turns can
// otherwise play on forever.
func Outcome(s *game.Scenario) Result {
	if s.TurnCount >= s.Limits.MaxGameTurns {
		return Result{Over: true, Draw: true}
	}

	alive := make([]int8, 0, len(s.Factions))
	for f := range s.Factions {
		for _, p := range s.Provinces {
			if p.Faction == int8(f) && p.Active {
				alive = append(alive, int8(f))
				break
			}
		}
	}

	switch len(alive) {
	case 0:
		return Result{Over: true, Draw: true}
	case 1:
		return Result{Over: true, Winner: alive[0]}
	default:
		return Result{}
	}
}

// Score converts a result into a value in [-1, 1] from the given faction's
// perspective. Draws score as a small positive value rather than zero so
// terminal draws are distinguishable from an ongoing game's neutral
// evaluation.
func (r Result) Score(faction int8) float32 {
	if !r.Over {
		return 0
	}
	if r.Draw {
		return 1e-4
	}
	if r.Winner == faction {
		return 1
	}
	return -1
}

// Evaluate is a cheap heuristic position score in [-1, 1] from the given
// faction's perspective, based on territory, material and treasury. Used
// when search hits its depth guard without reaching a terminal state.
func Evaluate(s *game.Scenario, faction int8) float32 {
	var own, opp float32
	for i := range s.Tiles {
		t := &s.Tiles[i]
		if t.Water || t.Owner == game.NoOwner {
			continue
		}
		weight := float32(1)
		if t.Unit.IsSoldier() {
			weight += float32(t.Unit.SoldierTier())
		}
		if t.Owner == faction {
			own += weight
		} else {
			opp += weight
		}
	}

	own += float32(s.FactionResources(faction)) / 50
	for f := range s.Factions {
		if int8(f) != faction {
			opp += float32(s.FactionResources(int8(f))) / 50
		}
	}

	if own+opp == 0 {
		return 0
	}
	return (own - opp) / (own + opp)
}
