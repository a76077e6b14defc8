// Console visualization for debugging self-play games.
package selfplay

import (
	"fmt"
	"strings"

	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/rules"
)

// BoardString renders the board as ASCII, one glyph per tile: faction
// letter for owned tiles, unit symbol appended. Odd columns are indented
// half a cell to suggest the hex stagger.
func BoardString(s *game.Scenario) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "turn %d, faction %d to play (%d/%d actions)\n",
		s.TurnCount, s.Turn.Faction, s.Turn.ActionsTaken, s.Limits.MaxActionsPerTurn)

	for row := 0; row < s.Size; row++ {
		for col := 0; col < s.Size; col++ {
			if col%2 == 1 {
				// half-step stagger marker for odd columns
				sb.WriteString(" ")
			}
			t := s.At(row, col)
			sb.WriteString(tileGlyph(t))
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}

	for f, name := range s.Factions {
		fmt.Fprintf(&sb, "%s: %d resources, income %d\n",
			name, s.FactionResources(int8(f)), factionIncome(s, int8(f)))
	}
	return sb.String()
}

func tileGlyph(t *game.Tile) string {
	if t.Water {
		return "~~"
	}

	owner := "."
	if t.Owner == 0 {
		owner = "A"
	} else if t.Owner > 0 {
		owner = string(rune('A' + t.Owner))
	}

	unit := "."
	switch {
	case t.Unit.IsSoldier():
		unit = fmt.Sprintf("%d", t.Unit.SoldierTier())
	case t.Unit == game.UnitCapital:
		unit = "C"
	case t.Unit == game.UnitFarm:
		unit = "f"
	case t.Unit == game.UnitTower1:
		unit = "t"
	case t.Unit == game.UnitTower2:
		unit = "T"
	case t.Unit == game.UnitTree:
		unit = "*"
	case t.Unit == game.UnitGravestone:
		unit = "x"
	}

	return owner + unit
}

func factionIncome(s *game.Scenario, faction int8) int {
	total := 0
	for _, p := range s.Provinces {
		if p.Faction == faction && p.Active {
			total += rules.Income(s, p)
		}
	}
	return total
}
