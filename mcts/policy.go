package mcts

import (
	"context"
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/tmarkus/hexzero/convert"
	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/rules"
)

// ActionProbs runs the simulation budget from the given state and converts
// the root visit counts into an action probability distribution.
//
// With temperature 0 the distribution is a one-hot argmax of visit counts
// (lowest index on ties); with temperature T > 0 probabilities are
// proportional to N^(1/T). A cancelled context stops simulating early and
// the distribution is computed from whatever counts accumulated.
func (e *Engine) ActionProbs(ctx context.Context, state *game.Scenario, sims int, temperature float64) []float64 {
	mask := convert.LegalMask(state)
	legal := legalIndices(mask)
	if len(legal) == 0 {
		// Forced pass: nothing to search, nothing to predict.
		return oneHot(convert.EndTurnIndex)
	}

	tensor := convert.Encode(state, state.Turn.Faction)
	rootKey := convert.StateKey(*tensor)
	convert.PutFloatBuffer(tensor)

	for i := 0; i < sims; i++ {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		if i == 1 && temperature > 0 && e.cfg.RootNoise {
			e.addRootNoise(rootKey, legal)
		}
		e.simulate(state)
	}

	root, ok := e.nodes[rootKey]
	if !ok || root.terminal {
		return uniformOver(legal)
	}

	if temperature == 0 {
		best := legal[0]
		for _, a := range legal {
			if root.n[a] > root.n[best] {
				best = a
			}
		}
		return oneHot(best)
	}

	probs := make([]float64, convert.ActionSize)
	sum := 0.0
	for _, a := range legal {
		p := math.Pow(float64(root.n[a]), 1/temperature)
		probs[a] = p
		sum += p
	}
	if sum <= eps {
		return uniformOver(legal)
	}
	for a := range probs {
		probs[a] /= sum
	}
	return probs
}

// SelectActions is the caller-facing decision API: it searches and returns
// the ordered actions for one of the faction's turns, always terminated by
// an end-turn action. The search tree is rebuilt fresh for the decision
// but shared across the turn's successive actions.
func (e *Engine) SelectActions(ctx context.Context, state *game.Scenario, faction int8, sims int, temperature float64) ([]game.Action, error) {
	e.Reset()

	var actions []game.Action
	current := state

	// The per-turn cap bounds the loop; +1 covers the closing end-turn.
	for i := 0; i <= current.Limits.MaxActionsPerTurn; i++ {
		if current.Turn.Faction != faction {
			break
		}

		legalActions := rules.LegalActions(current)
		if len(legalActions) <= 1 {
			// Only end-turn remains; no point consulting the predictor.
			actions = append(actions, game.EndTurn())
			break
		}

		probs := e.ActionProbs(ctx, current, sims, temperature)
		idx := e.pickAction(probs, temperature)
		action, err := convert.DecodeAction(idx)
		if err != nil {
			return nil, err
		}

		actions = append(actions, action)
		if action.Type == game.ActionEndTurn {
			break
		}

		next, err := rules.Apply(current, action)
		if err != nil {
			return nil, err
		}
		current = next
	}

	if len(actions) == 0 || actions[len(actions)-1].Type != game.ActionEndTurn {
		actions = append(actions, game.EndTurn())
	}
	return actions, nil
}

// pickAction draws from the distribution, or takes its argmax at
// temperature 0 (ties to the lowest index).
func (e *Engine) pickAction(probs []float64, temperature float64) int {
	if temperature == 0 {
		best := 0
		for a, p := range probs {
			if p > probs[best] {
				best = a
			}
		}
		return best
	}

	r := e.rng.Float64()
	cumulative := 0.0
	last := convert.EndTurnIndex
	for a, p := range probs {
		if p <= 0 {
			continue
		}
		cumulative += p
		last = a
		if r < cumulative {
			return a
		}
	}
	return last
}

// addRootNoise mixes Dirichlet noise into the root prior,
// (1-f)*p + f*Dir(alpha), restricted to legal actions. Applied once per
// decision during self-play to diversify exploration.
func (e *Engine) addRootNoise(rootKey string, legal []int) {
	root, ok := e.nodes[rootKey]
	if !ok || root.terminal || len(legal) == 0 {
		return
	}

	alpha := make([]float64, len(legal))
	for i := range alpha {
		alpha[i] = e.cfg.DirichletAlpha
	}
	dir := distmv.NewDirichlet(alpha, exprand.NewSource(e.noiseSeed))
	e.noiseSeed++

	noise := dir.Rand(nil)
	f := float32(e.cfg.ExplorationFraction)
	for i, a := range legal {
		root.priors[a] = (1-f)*root.priors[a] + f*float32(noise[i])
	}
}

func legalIndices(mask [convert.ActionSize]bool) []int {
	var out []int
	for a, ok := range mask {
		if ok {
			out = append(out, a)
		}
	}
	return out
}

func oneHot(index int) []float64 {
	probs := make([]float64, convert.ActionSize)
	probs[index] = 1
	return probs
}

func uniformOver(legal []int) []float64 {
	probs := make([]float64, convert.ActionSize)
	if len(legal) == 0 {
		probs[convert.EndTurnIndex] = 1
		return probs
	}
	p := 1 / float64(len(legal))
	for _, a := range legal {
		probs[a] = p
	}
	return probs
}
