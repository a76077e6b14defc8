package convert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/game"
)

func testScenario() *game.Scenario {
	s := game.Empty(Width, []string{"red", "blue"}, game.DefaultLimits())

	own := []int{0, 1, 2}
	opp := []int{33, 34, 35}
	for _, idx := range own {
		s.Tiles[idx].Owner = 0
	}
	for _, idx := range opp {
		s.Tiles[idx].Owner = 1
	}
	s.Tiles[0].Unit = game.UnitCapital
	s.Tiles[35].Unit = game.UnitCapital
	s.Tiles[1].Unit = game.UnitSoldier2
	s.Tiles[1].CanMove = true
	s.Tiles[34].Unit = game.UnitFarm
	s.Tiles[10].Water = true

	s.Provinces = []*game.Province{
		{Faction: 0, Tiles: own, Resources: 30, Active: true},
		{Faction: 1, Tiles: opp, Resources: 45, Active: true},
	}
	s.TurnCount = 10
	return s
}

func TestEncodeDeterministic(t *testing.T) {
	s := testScenario()

	a := Encode(s, 0)
	b := Encode(s, 0)
	defer PutFloatBuffer(a)
	defer PutFloatBuffer(b)

	require.Equal(t, *a, *b, "identical state and perspective must encode identically")
	require.Equal(t, StateKey(*a), StateKey(*b))
	require.Len(t, *a, FloatSize)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := testScenario()

	tensor := Encode(s, 0)
	defer PutFloatBuffer(tensor)

	got, err := Decode(*tensor, s.Limits)
	require.NoError(t, err)

	for idx := range s.Tiles {
		want := &s.Tiles[idx]
		have := &got.Tiles[idx]
		require.Equal(t, want.Water, have.Water, "tile %d water", idx)
		require.Equal(t, want.Unit, have.Unit, "tile %d unit", idx)
		require.Equal(t, want.CanMove, have.CanMove, "tile %d can-move", idx)
		if !want.Water {
			require.Equal(t, want.Owner, have.Owner, "tile %d owner", idx)
		}
	}

	require.Equal(t, int8(0), got.Turn.Faction, "decode frames faction 0 as to-play")
	require.Equal(t, s.Turn.ActionsTaken, got.Turn.ActionsTaken)
	require.Equal(t, s.TurnCount, got.TurnCount)

	// Resources are normalized in the tensor; they round-trip within the
	// quantization bound.
	require.InDelta(t, 30, got.FactionResources(0), 1)
	require.InDelta(t, 45, got.FactionResources(1), 1)
}

func TestFlipMatchesOppositePerspective(t *testing.T) {
	s := testScenario()

	a := Encode(s, 0)
	b := Encode(s, 1)
	defer PutFloatBuffer(a)
	defer PutFloatBuffer(b)

	Flip(*a)
	require.Equal(t, *b, *a, "flipping a tensor equals encoding from the other side")
}

func TestFlipIsInvolution(t *testing.T) {
	s := testScenario()

	tensor := Encode(s, 0)
	defer PutFloatBuffer(tensor)

	orig := make([]float32, FloatSize)
	copy(orig, *tensor)

	Flip(*tensor)
	require.NotEqual(t, orig, *tensor)
	Flip(*tensor)
	require.Equal(t, orig, *tensor)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode(make([]float32, 7), game.DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidEncodingInput)

	// A tile owned by both factions is structurally impossible.
	data := make([]float32, FloatSize)
	data[chOwnership*Height*Width+5] = 1
	data[(chOwnership+1)*Height*Width+5] = 1
	_, err = Decode(data, game.DefaultLimits())
	require.ErrorIs(t, err, ErrEncodingMismatch)

	// Two units on one tile.
	data = make([]float32, FloatSize)
	data[chCapital*Height*Width+5] = 1
	data[chFarm*Height*Width+5] = 1
	_, err = Decode(data, game.DefaultLimits())
	require.ErrorIs(t, err, ErrEncodingMismatch)

	// An own soldier on a tile the own faction does not hold.
	data = make([]float32, FloatSize)
	data[chOwnSoldier*Height*Width+5] = 1
	_, err = Decode(data, game.DefaultLimits())
	require.ErrorIs(t, err, ErrEncodingMismatch)
}

func TestActionIndexBijection(t *testing.T) {
	for idx := 0; idx < ActionSize; idx++ {
		a, err := DecodeAction(idx)
		require.NoError(t, err, "index %d", idx)

		back, err := EncodeAction(a)
		require.NoError(t, err, "index %d", idx)
		require.Equal(t, idx, back, "index %d must survive the round trip", idx)
	}
}

func TestActionIndexBounds(t *testing.T) {
	_, err := DecodeAction(-1)
	require.ErrorIs(t, err, ErrUnknownActionIndex)

	_, err = DecodeAction(ActionSize)
	require.ErrorIs(t, err, ErrUnknownActionIndex)

	_, err = EncodeMove(-1, 2)
	require.ErrorIs(t, err, ErrInvalidEncodingInput)

	_, err = EncodeMove(0, 0)
	require.ErrorIs(t, err, ErrInvalidEncodingInput, "a tile is not its own destination")

	// Tile 0's destination slots cover tiles 1 through MaxDestinations;
	// anything past that is outside the encodable space.
	_, err = EncodeMove(0, MaxDestinations+1)
	require.ErrorIs(t, err, ErrInvalidEncodingInput)

	idx, err := EncodeMove(0, MaxDestinations)
	require.NoError(t, err)
	require.Equal(t, MaxDestinations-1, idx)

	_, err = EncodeBuild(0, game.UnitTree)
	require.ErrorIs(t, err, ErrInvalidEncodingInput)
}

func TestEndTurnIndexReserved(t *testing.T) {
	require.Equal(t, ActionSize-1, EncodeEndTurn())

	a, err := DecodeAction(EndTurnIndex)
	require.NoError(t, err)
	require.Equal(t, game.ActionEndTurn, a.Type)
}

func TestLegalMaskNeverEmpty(t *testing.T) {
	s := testScenario()

	mask := LegalMask(s)
	require.True(t, mask[EndTurnIndex], "end-turn is always legal")

	legal := 0
	for _, ok := range mask {
		if ok {
			legal++
		}
	}
	require.Greater(t, legal, 1, "the starting position has moves and builds")

	// At the action cap only end-turn survives.
	s.Turn.ActionsTaken = s.Limits.MaxActionsPerTurn
	mask = LegalMask(s)
	for a, ok := range mask {
		require.Equal(t, a == EndTurnIndex, ok, "index %d", a)
	}
}
