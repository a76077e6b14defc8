package mcts

import (
	"github.com/tmarkus/hexzero/convert"
)

// Predictor is the policy/value oracle consulted when expanding a leaf.
// Implementations receive the canonical state tensor and return raw policy
// logits over the full action space plus a scalar value estimate in
// [-1, 1] from the acting faction's perspective. Implementations may batch
// concurrent calls internally; correctness does not depend on batching.
type Predictor interface {
	Predict(input []float32) (policy []float32, value float32, err error)
}

// node holds the search statistics for one canonical state: the masked,
// renormalized prior P, per-action visit counts N and accumulated values W,
// and the total state visit count. Terminal states store their outcome
// instead. All values are framed from the perspective of the faction to
// act in this state.
type node struct {
	priors   []float32
	mask     [convert.ActionSize]bool
	n        []int32
	w        []float32
	visits   int
	terminal bool
	value    float32
}

func newNode(priors []float32, mask [convert.ActionSize]bool) *node {
	return &node{
		priors: priors,
		mask:   mask,
		n:      make([]int32, convert.ActionSize),
		w:      make([]float32, convert.ActionSize),
	}
}

func terminalNode(value float32) *node {
	return &node{terminal: true, value: value}
}

// q returns the mean action value, zero before the first visit.
func (nd *node) q(a int) float32 {
	if nd.n[a] == 0 {
		return 0
	}
	return nd.w[a] / float32(nd.n[a])
}
