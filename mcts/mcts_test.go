package mcts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/convert"
	"github.com/tmarkus/hexzero/game"
)

// mockPredictor returns flat logits and a fixed value, counting calls.
type mockPredictor struct {
	value float32
	calls int
}

func (m *mockPredictor) Predict(input []float32) ([]float32, float32, error) {
	m.calls++
	return make([]float32, convert.ActionSize), m.value, nil
}

func searchScenario() *game.Scenario {
	s := game.Empty(6, []string{"red", "blue"}, game.DefaultLimits())

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

	s.Provinces = []*game.Province{
		{Faction: 0, Tiles: own, Resources: 30, Active: true},
		{Faction: 1, Tiles: opp, Resources: 30, Active: true},
	}
	return s
}

func TestActionProbsVisitAccounting(t *testing.T) {
	predictor := &mockPredictor{value: 0.5}
	engine := New(predictor, WithSeed(1))
	state := searchScenario()

	sims := 16
	probs := engine.ActionProbs(context.Background(), state, sims, 1.0)

	tensor := convert.Encode(state, state.Turn.Faction)
	rootKey := convert.StateKey(*tensor)
	convert.PutFloatBuffer(tensor)

	root, ok := engine.nodes[rootKey]
	require.True(t, ok, "the root must be expanded")

	// The first simulation expands the root without traversing an edge, so
	// the root's child visits account for the remaining budget.
	var total int32
	for _, n := range root.n {
		total += n
	}
	require.Equal(t, int32(sims-1), total)

	sum := 0.0
	for _, p := range probs {
		require.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)

	require.Greater(t, predictor.calls, 0)
}

func TestActionProbsOnlyLegalActions(t *testing.T) {
	engine := New(&mockPredictor{}, WithSeed(1))
	state := searchScenario()

	mask := convert.LegalMask(state)
	probs := engine.ActionProbs(context.Background(), state, 20, 1.0)
	for a, p := range probs {
		if !mask[a] {
			require.Zero(t, p, "illegal action %d received probability", a)
		}
	}
}

func TestActionProbsTemperatureZeroIsOneHot(t *testing.T) {
	engine := New(&mockPredictor{}, WithSeed(1))
	state := searchScenario()

	probs := engine.ActionProbs(context.Background(), state, 20, 0)

	ones := 0
	for _, p := range probs {
		if p == 1 {
			ones++
		} else {
			require.Zero(t, p)
		}
	}
	require.Equal(t, 1, ones)
}

func TestSearchIsDeterministic(t *testing.T) {
	state := searchScenario()

	a := New(&mockPredictor{}, WithSeed(7), WithRootNoise(0.3, 0.25))
	b := New(&mockPredictor{}, WithSeed(7), WithRootNoise(0.3, 0.25))

	pa := a.ActionProbs(context.Background(), state, 30, 1.0)
	pb := b.ActionProbs(context.Background(), state, 30, 1.0)
	require.Equal(t, pa, pb, "same seed and budget must reproduce the search")
}

func TestSelectActionsEndsWithEndTurn(t *testing.T) {
	engine := New(&mockPredictor{}, WithSeed(3))
	state := searchScenario()

	actions, err := engine.SelectActions(context.Background(), state, 0, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, actions)
	require.Equal(t, game.ActionEndTurn, actions[len(actions)-1].Type)
	require.LessOrEqual(t, len(actions), state.Limits.MaxActionsPerTurn+1)
}

func TestSelectActionsForcedPassSkipsPredictor(t *testing.T) {
	predictor := &mockPredictor{}
	engine := New(predictor, WithSeed(3))

	state := searchScenario()
	state.Turn.ActionsTaken = state.Limits.MaxActionsPerTurn

	actions, err := engine.SelectActions(context.Background(), state, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, game.ActionEndTurn, actions[0].Type)
	require.Zero(t, predictor.calls, "a forced pass must not consult the predictor")
}

func TestSelectActionsBrokePositionJustPasses(t *testing.T) {
	predictor := &mockPredictor{}
	engine := New(predictor, WithSeed(3))

	// No soldiers and an empty treasury: ending the turn is the only option.
	state := searchScenario()
	state.Provinces[0].Resources = 0

	actions, err := engine.SelectActions(context.Background(), state, 0, 10, 1.0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, game.ActionEndTurn, actions[0].Type)
	require.Zero(t, predictor.calls)
}

func TestNilPredictorFallsBackToUniform(t *testing.T) {
	engine := New(nil, WithSeed(1))
	state := searchScenario()

	probs := engine.ActionProbs(context.Background(), state, 10, 1.0)
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestSelectActionTiesBreakLowestIndex(t *testing.T) {
	engine := New(nil)

	var mask [convert.ActionSize]bool
	mask[5] = true
	mask[900] = true
	nd := newNode(uniformPrior(mask), mask)

	require.Equal(t, 5, engine.selectAction(nd))

	// Visits shift the balance toward the unexplored action.
	nd.n[5] = 10
	nd.w[5] = -5
	nd.visits = 10
	require.Equal(t, 900, engine.selectAction(nd))
}

func TestResetDropsStatistics(t *testing.T) {
	engine := New(&mockPredictor{}, WithSeed(1))
	state := searchScenario()

	engine.ActionProbs(context.Background(), state, 10, 1.0)
	require.NotEmpty(t, engine.nodes)

	engine.Reset()
	require.Empty(t, engine.nodes)
}

func TestCancelledContextStopsEarly(t *testing.T) {
	predictor := &mockPredictor{}
	engine := New(predictor, WithSeed(1))
	state := searchScenario()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probs := engine.ActionProbs(ctx, state, 1000, 1.0)
	require.Zero(t, predictor.calls, "no simulations run under a cancelled context")

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-9, "a fallback distribution still comes back")
}

func TestMaskedSoftmax(t *testing.T) {
	var mask [convert.ActionSize]bool
	mask[0] = true
	mask[1] = true

	logits := make([]float32, convert.ActionSize)
	logits[0] = 1
	logits[1] = 1
	logits[2] = 100 // illegal, must be ignored

	priors := maskedSoftmax(logits, mask)
	require.NotNil(t, priors)
	require.InDelta(t, 0.5, priors[0], 1e-6)
	require.InDelta(t, 0.5, priors[1], 1e-6)
	require.Zero(t, priors[2])
}
