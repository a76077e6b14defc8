package inference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/convert"
)

func TestFallbackPredict(t *testing.T) {
	policy, value, err := Fallback{}.Predict(make([]float32, convert.FloatSize))
	require.NoError(t, err)
	require.Len(t, policy, convert.ActionSize)
	require.Zero(t, value)
	for _, p := range policy {
		require.Zero(t, p, "fallback logits are flat")
	}
}

func TestClientShutdownFailsPendingPredicts(t *testing.T) {
	// No session: the batch size and timeout are chosen so the loop never
	// tries to run a batch before it is shut down.
	c := &OnnxClient{
		cfg:          OnnxClientConfig{BatchSize: 8, BatchTimeout: time.Hour},
		requestsChan: make(chan inferenceRequest, 16),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go c.batchLoop()

	errs := make(chan error, 1)
	go func() {
		_, _, err := c.Predict(make([]float32, InputSize))
		errs <- err
	}()

	// Let the request reach the loop, then shut it down.
	time.Sleep(10 * time.Millisecond)
	close(c.done)
	<-c.loopDone

	require.ErrorIs(t, <-errs, ErrPredictorUnavailable, "in-flight calls fail instead of hanging")

	_, _, err := c.Predict(make([]float32, InputSize))
	require.ErrorIs(t, err, ErrPredictorUnavailable, "calls after shutdown fail immediately")
}
