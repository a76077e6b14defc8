// The debuggame command plays a single game with the board printed after
// every turn, then archives it for the viewer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/inference"
	"github.com/tmarkus/hexzero/mcts"
	"github.com/tmarkus/hexzero/rules"
	"github.com/tmarkus/hexzero/selfplay"
	"github.com/tmarkus/hexzero/store"
)

func main() {
	modelPath := flag.String("model", "", "Path to ONNX model (empty: uniform priors)")
	archiveDir := flag.String("archive-dir", "debug_games", "Output directory for the archived game")
	sims := flag.Int("sims", 100, "MCTS simulations per decision")
	cpuct := flag.Float64("cpuct", 1.0, "PUCT exploration constant")
	seed := flag.Int64("seed", 0, "Map and search seed (0: time-based)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var predictor mcts.Predictor
	if *modelPath != "" {
		client, err := inference.NewOnnxClient(*modelPath)
		if err != nil {
			log.Fatal().Err(err).Str("model", *modelPath).Msg("failed to load model")
		}
		defer client.Close()
		predictor = client
	} else {
		log.Warn().Msg("no model given, searching with uniform priors")
		predictor = inference.Fallback{}
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	state := game.Generate(game.DefaultGenerateConfig(*seed))

	engines := make([]*mcts.Engine, len(state.Factions))
	for f := range engines {
		engines[f] = mcts.New(predictor,
			mcts.WithCpuct(float32(*cpuct)),
			mcts.WithSeed(*seed+int64(f)))
	}

	gameID := fmt.Sprintf("debug-%d", *seed)
	var archive []store.ArchiveTurnRow

	fmt.Println(selfplay.BoardString(state))
	for {
		result := rules.Outcome(state)
		if result.Over {
			if result.Draw {
				log.Info().Int("turns", state.TurnCount).Msg("game over: draw")
			} else {
				log.Info().Int("turns", state.TurnCount).
					Str("winner", state.Factions[result.Winner]).Msg("game over")
			}
			break
		}

		faction := state.Turn.Faction
		actions, err := engines[faction].SelectActions(ctx, state, faction, *sims, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("select actions")
		}

		for _, a := range actions {
			snapJSON, err := store.EncodeSnapshotJSON(store.Snapshot(state))
			if err != nil {
				log.Fatal().Err(err).Msg("encode snapshot")
			}
			archive = append(archive, store.ArchiveTurnRow{
				GameID:    gameID,
				Turn:      int32(state.TurnCount),
				Faction:   int32(faction),
				Action:    a.String(),
				StateJSON: snapJSON,
				Source:    "debuggame",
			})

			next, err := rules.Apply(state, a)
			if err != nil {
				log.Fatal().Err(err).Str("action", a.String()).Msg("apply action")
			}
			state = next

			fmt.Printf("%s plays %s\n", state.Factions[faction], a)
		}
		fmt.Println(selfplay.BoardString(state))
	}

	path, err := store.WriteArchiveParquet(*archiveDir, archive)
	if err != nil {
		log.Fatal().Err(err).Msg("write archive")
	}
	log.Info().Str("path", path).Int("rows", len(archive)).Msg("debug game archived")
}
