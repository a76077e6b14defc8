package inference

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/tmarkus/hexzero/convert"
)

const (
	InputSize  = convert.FloatSize
	PolicySize = convert.ActionSize
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 128
	DefaultBatchTimeout = 1 * time.Millisecond
)

// OnnxClientConfig tunes the inference batching behavior.
type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats aggregates batching behavior for monitoring.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient runs the policy/value network through ONNX Runtime. Predict
// calls from any number of goroutines are transparently batched by a
// single background loop; each caller blocks until its row of the batch
// returns.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	totalBatches  atomic.Int64
	totalItems    atomic.Int64
	totalRunNanos atomic.Int64
	lastBatchSize atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

// NewOnnxClient loads the model at modelPath with default batching.
// Returns ErrPredictorUnavailable (wrapped) if the model file is missing.
func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPredictorUnavailable, modelPath, err)
	}

	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many search workers share one session; keep ORT's own threading at 1
	// to avoid contention.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	// Use CUDA when present, fall back to CPU silently otherwise.
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err == nil {
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			log.Debug().Err(err).Msg("CUDA provider not available, using CPU")
		} else {
			log.Info().Msg("CUDA provider enabled")
		}
	}

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go client.batchLoop()

	return client, nil
}

// Close stops the batching loop, fails any pending Predict calls and only
// then destroys the session, so no batch can run against a destroyed
// session.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict submits one canonical state tensor and blocks until the batch
// containing it has run.
func (c *OnnxClient) Predict(input []float32) ([]float32, float32, error) {
	if len(input) != InputSize {
		return nil, 0, fmt.Errorf("input has %d floats, want %d", len(input), InputSize)
	}

	// The caller may recycle its buffer as soon as Predict returns, so
	// the batch keeps its own copy.
	row := make([]float32, InputSize)
	copy(row, input)

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: row, respChan: respChan}:
	case <-c.done:
		return nil, 0, errClientClosed()
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.loopDone:
		// The loop may have failed this request while draining.
		select {
		case resp := <-respChan:
			return resp.policy, resp.value, resp.err
		default:
			return nil, 0, errClientClosed()
		}
	}
}

func errClientClosed() error {
	return fmt.Errorf("%w: client closed", ErrPredictorUnavailable)
}

func (c *OnnxClient) Stats() RuntimeStats {
	batches := c.totalBatches.Load()
	items := c.totalItems.Load()
	runNanos := c.totalRunNanos.Load()

	st := RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: c.lastBatchSize.Load(),
		QueueLen:      len(c.requestsChan),
	}
	if batches > 0 {
		st.AvgBatchSize = float64(items) / float64(batches)
		st.AvgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}
	return st
}

func (c *OnnxClient) batchLoop() {
	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.failBatch(requests, errClientClosed())
			for {
				select {
				case req := <-c.requestsChan:
					req.respChan <- inferenceResponse{err: errClientClosed()}
				default:
					close(c.loopDone)
					return
				}
			}
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)

			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	started := time.Now()
	currentBatchSize := int64(len(requests))

	inputShape := []int64{currentBatchSize, convert.Channels, convert.Height, convert.Width}
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, PolicySize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, ValueSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i],
		}
	}

	c.totalBatches.Add(1)
	c.totalItems.Add(currentBatchSize)
	c.totalRunNanos.Add(time.Since(started).Nanoseconds())
	c.lastBatchSize.Store(currentBatchSize)
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
