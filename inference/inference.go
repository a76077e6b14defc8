// Package inference provides Predictor implementations for the search
// engine: a batched ONNX Runtime client for trained models and a
// deterministic fallback used when no model is loaded.
package inference

import (
	"errors"

	"github.com/tmarkus/hexzero/convert"
)

// ErrPredictorUnavailable reports that no model could be loaded. Callers
// should degrade to the Fallback predictor rather than abort the game.
var ErrPredictorUnavailable = errors.New("no predictor model available")

// Fallback is the no-model predictor: flat logits (a uniform prior once
// masked) and a neutral value. With it the engine still produces legal,
// deterministic play, it just searches without guidance.
type Fallback struct{}

// Predict returns zero logits over the full action space and value 0.
func (Fallback) Predict(input []float32) ([]float32, float32, error) {
	return make([]float32, convert.ActionSize), 0, nil
}
