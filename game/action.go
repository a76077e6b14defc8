package game

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionType discriminates the three kinds of actions a faction can take.
type ActionType int8

const (
	ActionMove ActionType = iota
	ActionBuild
	ActionEndTurn
)

// Action is a single domain action: move a soldier, build a unit, or end
// the turn. From/To are tile indices for moves; Tile and Unit describe a
// build.
type Action struct {
	Type ActionType
	From int
	To   int
	Tile int
	Unit UnitType
}

// Move constructs a soldier move from one tile to another.
func Move(from, to int) Action {
	return Action{Type: ActionMove, From: from, To: to}
}

// Build constructs a build action placing unit on tile.
func Build(tile int, unit UnitType) Action {
	return Action{Type: ActionBuild, Tile: tile, Unit: unit}
}

// EndTurn constructs the end-turn action.
func EndTurn() Action {
	return Action{Type: ActionEndTurn}
}

// ParseAction is the inverse of String.
func ParseAction(s string) (Action, error) {
	switch {
	case s == "endturn":
		return EndTurn(), nil
	case strings.HasPrefix(s, "move "):
		var from, to int
		if _, err := fmt.Sscanf(s, "move %d->%d", &from, &to); err != nil {
			return Action{}, fmt.Errorf("malformed move action %q", s)
		}
		return Move(from, to), nil
	case strings.HasPrefix(s, "build "):
		at := strings.LastIndexByte(s, '@')
		if at < 0 {
			return Action{}, fmt.Errorf("malformed build action %q", s)
		}
		unit, err := ParseUnitType(s[len("build "):at])
		if err != nil {
			return Action{}, err
		}
		tile, err := strconv.Atoi(s[at+1:])
		if err != nil {
			return Action{}, fmt.Errorf("malformed build action %q", s)
		}
		return Build(tile, unit), nil
	}
	return Action{}, fmt.Errorf("unknown action %q", s)
}

func (a Action) String() string {
	switch a.Type {
	case ActionMove:
		return fmt.Sprintf("move %d->%d", a.From, a.To)
	case ActionBuild:
		return fmt.Sprintf("build %s@%d", a.Unit, a.Tile)
	case ActionEndTurn:
		return "endturn"
	}
	return "invalid"
}
