package convert

import (
	"fmt"

	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/rules"
)

// Action space: per-tile move slots, then per-tile build slots, then the
// single end-turn index. The mapping is a total bijection on each declared
// range; anything outside [0, ActionSize) is illegal by construction.
const (
	MaxDestinations = 20
	NumUnitTypes    = 7

	MoveActions  = NumTiles * MaxDestinations
	BuildActions = NumTiles * NumUnitTypes
	ActionSize   = MoveActions + BuildActions + 1
	EndTurnIndex = ActionSize - 1
)

// Destination lookup tables. For every source tile the candidate
// destination tiles are all other tiles in lexicographic (row, col) order,
// truncated to MaxDestinations slots. The ordering is fixed so move
// encoding stays stable across processes and training runs.
var (
	destByOffset [NumTiles][MaxDestinations]int16
	offsetByDest [NumTiles][NumTiles]int8
)

func init() {
	for from := 0; from < NumTiles; from++ {
		for i := range offsetByDest[from] {
			offsetByDest[from][i] = -1
		}
		offset := 0
		for to := 0; to < NumTiles && offset < MaxDestinations; to++ {
			if to == from {
				continue
			}
			destByOffset[from][offset] = int16(to)
			offsetByDest[from][to] = int8(offset)
			offset++
		}
	}
}

// buildUnits maps build slot indices to unit types, mirroring
// rules.BuildableUnitTypes.
var buildUnits = rules.BuildableUnitTypes

// EncodeMove returns the action index for moving from one tile to another.
func EncodeMove(from, to int) (int, error) {
	if from < 0 || from >= NumTiles || to < 0 || to >= NumTiles {
		return 0, fmt.Errorf("%w: move tiles %d->%d", ErrInvalidEncodingInput, from, to)
	}
	offset := offsetByDest[from][to]
	if offset < 0 {
		return 0, fmt.Errorf("%w: tile %d has no destination slot for %d", ErrInvalidEncodingInput, from, to)
	}
	return from*MaxDestinations + int(offset), nil
}

// EncodeBuild returns the action index for building a unit on a tile.
func EncodeBuild(tile int, unit game.UnitType) (int, error) {
	if tile < 0 || tile >= NumTiles {
		return 0, fmt.Errorf("%w: build tile %d", ErrInvalidEncodingInput, tile)
	}
	for i, u := range buildUnits {
		if u == unit {
			return MoveActions + tile*NumUnitTypes + i, nil
		}
	}
	return 0, fmt.Errorf("%w: unit %s is not buildable", ErrInvalidEncodingInput, unit)
}

// EncodeEndTurn returns the reserved end-turn action index.
func EncodeEndTurn() int {
	return EndTurnIndex
}

// EncodeAction converts a domain action to its index.
func EncodeAction(a game.Action) (int, error) {
	switch a.Type {
	case game.ActionMove:
		return EncodeMove(a.From, a.To)
	case game.ActionBuild:
		return EncodeBuild(a.Tile, a.Unit)
	case game.ActionEndTurn:
		return EndTurnIndex, nil
	}
	return 0, fmt.Errorf("%w: action type %d", ErrInvalidEncodingInput, a.Type)
}

// DecodeAction converts an action index back into a domain action.
func DecodeAction(index int) (game.Action, error) {
	switch {
	case index < 0 || index >= ActionSize:
		return game.Action{}, fmt.Errorf("%w: %d outside [0, %d)", ErrUnknownActionIndex, index, ActionSize)
	case index == EndTurnIndex:
		return game.EndTurn(), nil
	case index < MoveActions:
		from := index / MaxDestinations
		offset := index % MaxDestinations
		return game.Move(from, int(destByOffset[from][offset])), nil
	default:
		adjusted := index - MoveActions
		tile := adjusted / NumUnitTypes
		unit := buildUnits[adjusted%NumUnitTypes]
		return game.Build(tile, unit), nil
	}
}

// LegalMask returns the boolean legality vector over the full action space
// for the acting faction. Legality is delegated to the rule engine; the
// mask is true exactly for indices whose decoded action the rules accept.
// The end-turn index is always true, so the mask is never empty.
func LegalMask(s *game.Scenario) [ActionSize]bool {
	var mask [ActionSize]bool
	for _, a := range rules.LegalActions(s) {
		idx, err := EncodeAction(a)
		if err != nil {
			// Legal moves outside the encodable action space (e.g. a
			// destination beyond the per-tile destination slots) cannot be
			// searched and are dropped.
			continue
		}
		mask[idx] = true
	}
	return mask
}
