// Package mcts implements the Monte-Carlo Tree Search engine that drives
// action selection. Search is guided by a policy/value predictor over the
// canonical tensor encoding and uses PUCT selection with legality masking.
//
// A search pass is a strictly sequential selection, expansion and
// backpropagation traversal. Descent is iterative with an explicit path
// slice; depth is bounded by the configured ceiling rather than the call
// stack.
package mcts

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/convert"
	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/rules"
)

const eps = 1e-8

// Config holds the search hyperparameters.
type Config struct {
	// Cpuct balances exploitation against prior-weighted exploration.
	Cpuct float32
	// MaxDepth is the per-simulation move-count ceiling. Beyond it the
	// position is scored with the heuristic evaluator instead of more
	// descent.
	MaxDepth int
	// HeuristicWeight softens depth-guard evaluations relative to true
	// terminals.
	HeuristicWeight float32
	// RootNoise mixes Dirichlet noise into the root prior during
	// self-play (only applied when sampling with temperature > 0).
	RootNoise           bool
	DirichletAlpha      float64
	ExplorationFraction float64
}

// Option mutates an Engine during construction.
type Option func(*Engine)

// WithCpuct overrides the exploration constant.
func WithCpuct(c float32) Option {
	return func(e *Engine) {
		if c > 0 {
			e.cfg.Cpuct = c
		}
	}
}

// WithMaxDepth overrides the per-simulation depth ceiling.
func WithMaxDepth(d int) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cfg.MaxDepth = d
		}
	}
}

// WithRootNoise enables Dirichlet root noise for self-play exploration.
func WithRootNoise(alpha, fraction float64) Option {
	return func(e *Engine) {
		e.cfg.RootNoise = true
		if alpha > 0 {
			e.cfg.DirichletAlpha = alpha
		}
		if fraction > 0 {
			e.cfg.ExplorationFraction = fraction
		}
	}
}

// WithSeed fixes the engine's random source, making temperature sampling
// and noise reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed))
		e.noiseSeed = uint64(seed)
	}
}

// Engine runs searches over a private tree of canonical states. Engines
// are not safe for concurrent use; independent games get independent
// engines, which may share one predictor.
type Engine struct {
	cfg       Config
	predictor Predictor
	rng       *rand.Rand
	noiseSeed uint64
	nodes     map[string]*node
}

// New builds an engine around a predictor. A nil predictor degrades to the
// uniform-prior, zero-value fallback so search still produces sane play
// when no model is loaded.
func New(predictor Predictor, options ...Option) *Engine {
	e := &Engine{
		cfg: Config{
			Cpuct:               1.0,
			MaxDepth:            100,
			HeuristicWeight:     0.5,
			DirichletAlpha:      0.3,
			ExplorationFraction: 0.25,
		},
		predictor: predictor,
		rng:       rand.New(rand.NewSource(1)),
		noiseSeed: 1,
		nodes:     make(map[string]*node),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Reset drops all accumulated search statistics. Called at the start of
// each decision so stale statistics from intervening moves never leak in.
func (e *Engine) Reset() {
	e.nodes = make(map[string]*node)
}

// step records one traversed edge: the node, the chosen action index and
// the faction that acted. The faction is needed because value sign flips
// only at faction changes, not at every edge; several same-faction actions
// may run in a row.
type step struct {
	nd      *node
	action  int
	faction int8
}

// simulate runs one selection, expansion, backpropagation pass from root.
func (e *Engine) simulate(root *game.Scenario) {
	state := root
	path := make([]step, 0, 32)

	var leafValue float32
	var leafFaction int8

	for depth := 0; ; depth++ {
		faction := state.Turn.Faction

		if depth >= e.cfg.MaxDepth {
			// Depth guard fired without a terminal: score with the
			// softened heuristic so the pass still carries signal.
			leafValue = e.cfg.HeuristicWeight * rules.Evaluate(state, faction)
			leafFaction = faction
			break
		}

		tensor := convert.Encode(state, faction)
		key := convert.StateKey(*tensor)
		convert.PutFloatBuffer(tensor)

		nd, ok := e.nodes[key]
		if !ok {
			nd, leafValue = e.expand(key, state)
			leafFaction = faction
			break
		}
		if nd.terminal {
			leafValue = nd.value
			leafFaction = faction
			break
		}

		a := e.selectAction(nd)
		if a < 0 {
			// No legal action survived masking: treat as a forced pass.
			a = convert.EndTurnIndex
		}
		path = append(path, step{nd: nd, action: a, faction: faction})

		action, err := convert.DecodeAction(a)
		if err != nil {
			log.Error().Err(err).Int("action", a).Msg("selected action failed to decode")
			leafValue = 0
			leafFaction = faction
			break
		}
		next, err := rules.Apply(state, action)
		if err != nil {
			log.Error().Err(err).Stringer("action", action).Msg("masked-legal action rejected by rules")
			leafValue = 0
			leafFaction = faction
			break
		}
		state = next
	}

	// Backpropagate along the recorded path, flipping sign whenever the
	// acting faction differs from the leaf's.
	for i := len(path) - 1; i >= 0; i-- {
		st := path[i]
		v := leafValue
		if st.faction != leafFaction {
			v = -leafValue
		}
		st.nd.w[st.action] += v
		st.nd.n[st.action]++
		st.nd.visits++
	}
}

// expand creates the node for an unvisited state. Terminal states store
// their outcome; everything else gets a masked, renormalized prior and a
// value estimate from the predictor.
func (e *Engine) expand(key string, state *game.Scenario) (*node, float32) {
	if result := rules.Outcome(state); result.Over {
		score := result.Score(state.Turn.Faction)
		nd := terminalNode(score)
		e.nodes[key] = nd
		return nd, score
	}

	mask := convert.LegalMask(state)
	priors, value := e.predict(state, mask)

	nd := newNode(priors, mask)
	e.nodes[key] = nd
	return nd, value
}

// predict queries the predictor and converts its logits into a masked
// prior distribution. Any predictor failure degrades to a uniform prior
// and neutral value rather than aborting the search.
func (e *Engine) predict(state *game.Scenario, mask [convert.ActionSize]bool) ([]float32, float32) {
	if e.predictor == nil {
		return uniformPrior(mask), 0
	}

	tensor := convert.Encode(state, state.Turn.Faction)
	policy, value, err := e.predictor.Predict(*tensor)
	convert.PutFloatBuffer(tensor)

	if err != nil || len(policy) != convert.ActionSize {
		log.Warn().Err(err).Int("policy_len", len(policy)).Msg("predictor unavailable, falling back to uniform prior")
		return uniformPrior(mask), 0
	}

	priors := maskedSoftmax(policy, mask)
	if priors == nil {
		// Masked probability mass vanished; the net knows nothing useful
		// about the legal moves here.
		return uniformPrior(mask), value
	}
	return priors, value
}

// selectAction picks the legal action maximizing the PUCT score
// Q + cpuct * P * sqrt(N) / (1 + n). Ties break toward the lowest index
// for determinism. Returns -1 if no action is legal.
func (e *Engine) selectAction(nd *node) int {
	sqrtN := math32.Sqrt(float32(nd.visits) + eps)

	best := -1
	bestScore := math32.Inf(-1)
	for a := 0; a < convert.ActionSize; a++ {
		if !nd.mask[a] {
			continue
		}
		u := nd.q(a) + e.cfg.Cpuct*nd.priors[a]*sqrtN/(1+float32(nd.n[a]))
		if u > bestScore {
			bestScore = u
			best = a
		}
	}
	return best
}

func uniformPrior(mask [convert.ActionSize]bool) []float32 {
	legal := 0
	for _, ok := range mask {
		if ok {
			legal++
		}
	}
	priors := make([]float32, convert.ActionSize)
	if legal == 0 {
		return priors
	}
	p := 1 / float32(legal)
	for a, ok := range mask {
		if ok {
			priors[a] = p
		}
	}
	return priors
}

// maskedSoftmax turns raw logits into a distribution over legal actions.
// Returns nil if the masked mass underflows to zero.
func maskedSoftmax(logits []float32, mask [convert.ActionSize]bool) []float32 {
	maxLogit := math32.Inf(-1)
	for a, ok := range mask {
		if ok && logits[a] > maxLogit {
			maxLogit = logits[a]
		}
	}

	priors := make([]float32, convert.ActionSize)
	sum := float32(0)
	for a, ok := range mask {
		if !ok {
			continue
		}
		v := math32.Exp(logits[a] - maxLogit)
		priors[a] = v
		sum += v
	}
	if sum <= 0 {
		return nil
	}
	inv := 1 / sum
	for a := range priors {
		priors[a] *= inv
	}
	return priors
}
