// The selfplay command runs parallel self-play games and writes the
// resulting training samples and archives to parquet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/inference"
	"github.com/tmarkus/hexzero/mcts"
	"github.com/tmarkus/hexzero/selfplay"
	"github.com/tmarkus/hexzero/store"
	"github.com/tmarkus/hexzero/viewer"
)

var totalInferences atomic.Int64

// instrumentedPredictor counts inference calls for the dashboard.
type instrumentedPredictor struct {
	mcts.Predictor
}

func (p *instrumentedPredictor) Predict(input []float32) ([]float32, float32, error) {
	totalInferences.Add(1)
	return p.Predictor.Predict(input)
}

type gameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Examples int
}

type gameWriteRequest struct {
	training []store.TrainingRow
	archive  []store.ArchiveTurnRow
}

type model struct {
	gamesPlayed   int
	totalExamples int
	inferences    int64
	startTime     time.Time
	recentGames   []string
	updates       chan gameUpdate
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates chan gameUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return tea.Quit()
		}
		return u
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.inferences = totalInferences.Load()
		return m, tickCmd()
	case gameUpdate:
		m.gamesPlayed++
		m.totalExamples += msg.Examples
		outcome := fmt.Sprintf("winner %d", msg.Result.Winner)
		if msg.Result.Draw {
			outcome = "draw"
		}
		line := fmt.Sprintf("worker %d: %s, %d turns, %d samples",
			msg.WorkerID, outcome, msg.Result.Turns, msg.Examples)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := 0.0
	inferencesPerSec := 0.0
	if duration.Seconds() >= 1 {
		gamesPerSec = float64(m.gamesPlayed) / duration.Seconds()
		inferencesPerSec = float64(m.inferences) / duration.Seconds()
	}

	s := fmt.Sprintf("Games Played:     %d\n", m.gamesPlayed)
	s += fmt.Sprintf("Total Samples:    %d\n", m.totalExamples)
	s += fmt.Sprintf("Total Inferences: %d\n", m.inferences)
	s += fmt.Sprintf("Duration:         %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Games/Sec:        %.2f\n", gamesPerSec)
	s += fmt.Sprintf("Inferences/Sec:   %.2f\n\n", inferencesPerSec)

	s += "Recent Games:\n"
	for _, g := range m.recentGames {
		s += g + "\n"
	}
	s += "\nPress q to quit.\n"
	return s
}

func main() {
	modelPath := flag.String("model", "", "Path to ONNX policy/value model (empty: play with the uniform fallback)")
	outDir := flag.String("out-dir", "data/generated", "Output directory for training parquet batches")
	archiveDir := flag.String("archive-dir", "data/archive", "Output directory for archive parquet batches")
	workers := flag.Int("workers", 8, "Number of self-play workers")
	sims := flag.Int("sims", 100, "MCTS simulations per decision")
	temperature := flag.Float64("temperature", 1.0, "Sampling temperature during self-play")
	tempCutoff := flag.Int("temp-cutoff", 20, "Turn after which play becomes greedy (0: never)")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Games to buffer per parquet flush")
	maxGames := flag.Int64("max-games", 0, "Stop after this many games (0: run until interrupted)")
	onnxSessions := flag.Int("onnx-sessions", 1, "Parallel ONNX Runtime sessions")
	onnxBatchSize := flag.Int("onnx-batch-size", inference.DefaultBatchSize, "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", inference.DefaultBatchTimeout, "Max wait to fill an ONNX batch")
	liveAddr := flag.String("live-addr", "", "If set, serve a live websocket viewer on this address")
	noTUI := flag.Bool("no-tui", false, "Disable the dashboard, log lines instead")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var predictor mcts.Predictor
	if *modelPath != "" {
		pool, err := inference.NewOnnxPool(*modelPath, *onnxSessions, inference.OnnxClientConfig{
			BatchSize:    *onnxBatchSize,
			BatchTimeout: *onnxBatchTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Str("model", *modelPath).Msg("failed to load model")
		}
		defer pool.Close()
		predictor = pool
	} else {
		log.Warn().Msg("no model given, searching with uniform priors")
		predictor = inference.Fallback{}
	}
	predictor = &instrumentedPredictor{Predictor: predictor}

	var publisher selfplay.Publisher
	if *liveAddr != "" {
		hub := viewer.NewLiveHub()
		publisher = hub
		srv := viewer.NewServer(*archiveDir, hub)
		go func() {
			if err := srv.ListenAndServe(*liveAddr); err != nil {
				log.Error().Err(err).Msg("live viewer stopped")
			}
		}()
	}

	updates := make(chan gameUpdate, 256)
	writes := make(chan gameWriteRequest, 256)

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		parquetWriterLoop(*outDir, *archiveDir, *gamesPerFlush, writes)
	}()

	var gamesStarted atomic.Int64
	var workerWG sync.WaitGroup
	for w := 0; w < *workers; w++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			for ctx.Err() == nil {
				if *maxGames > 0 && gamesStarted.Add(1) > *maxGames {
					cancel()
					return
				}

				training, archive, result, err := selfplay.PlayGame(ctx, workerID, predictor, selfplay.Options{
					Simulations:       *sims,
					Temperature:       *temperature,
					TemperatureCutoff: *tempCutoff,
					Source:            "selfplay",
					Publisher:         publisher,
				})
				if err != nil {
					if ctx.Err() == nil {
						log.Error().Err(err).Int("worker", workerID).Msg("game failed")
					}
					continue
				}

				writes <- gameWriteRequest{training: training, archive: archive}
				updates <- gameUpdate{WorkerID: workerID, Result: result, Examples: len(training)}
			}
		}(w)
	}

	go func() {
		workerWG.Wait()
		close(writes)
		close(updates)
	}()

	if *noTUI {
		for u := range updates {
			log.Info().
				Int("worker", u.WorkerID).
				Bool("draw", u.Result.Draw).
				Int8("winner", u.Result.Winner).
				Int("turns", u.Result.Turns).
				Int("samples", u.Examples).
				Msg("game finished")
		}
	} else {
		p := tea.NewProgram(model{startTime: time.Now(), updates: updates})
		if _, err := p.Run(); err != nil {
			log.Error().Err(err).Msg("dashboard failed")
		}
		cancel()
		// Keep draining so workers finishing their last game never block.
		go func() {
			for range updates {
			}
		}()
	}

	writerWG.Wait()
}

func parquetWriterLoop(outDir, archiveDir string, gamesPerFlush int, in <-chan gameWriteRequest) {
	var writer *store.BatchWriter
	var archiveRows []store.ArchiveTurnRow

	flush := func() {
		if writer != nil {
			path, rows, games, err := writer.Finalize()
			if err != nil {
				log.Error().Err(err).Msg("finalize training batch")
			} else if path != "" {
				log.Info().Str("path", path).Int("rows", rows).Int("games", games).Msg("training batch written")
			}
			writer = nil
		}
		if len(archiveRows) > 0 {
			if path, err := store.WriteArchiveParquet(archiveDir, archiveRows); err != nil {
				log.Error().Err(err).Msg("write archive batch")
			} else {
				log.Info().Str("path", path).Int("rows", len(archiveRows)).Msg("archive batch written")
			}
			archiveRows = nil
		}
	}

	for req := range in {
		if writer == nil {
			w, err := store.NewBatchWriter(outDir)
			if err != nil {
				log.Error().Err(err).Msg("create batch writer")
				continue
			}
			writer = w
		}
		if err := writer.WriteRows(req.training); err != nil {
			log.Error().Err(err).Msg("write training rows")
		}
		archiveRows = append(archiveRows, req.archive...)

		if writer.BufferedGames() >= gamesPerFlush {
			flush()
		}
	}
	flush()
}
