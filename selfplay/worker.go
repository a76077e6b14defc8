// Package selfplay generates training data by having two search-driven
// agents play complete games against each other.
package selfplay

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seehuhn/mt19937"

	"github.com/tmarkus/hexzero/convert"
	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/mcts"
	"github.com/tmarkus/hexzero/rules"
	"github.com/tmarkus/hexzero/store"
)

// GameResult summarizes one finished self-play game.
type GameResult struct {
	GameID string
	Winner int8
	Draw   bool
	Turns  int
}

// Options configures a self-play game.
type Options struct {
	Simulations int
	Temperature float64
	// TemperatureCutoff switches to greedy play after this many turns so
	// endgames are played out strongly. Zero means never.
	TemperatureCutoff int
	Seed              int64
	Source            string
	// Publisher, when set, receives a snapshot after every applied action
	// for live viewing. Publishing must not block.
	Publisher Publisher
}

// Publisher receives live frames of an in-progress game.
type Publisher interface {
	Publish(gameID string, snap store.ScenarioSnapshot)
}

// PlayGame plays one full game and returns the collected training and
// archive rows. Both factions search with the same predictor. The game
// always terminates: the rules' global turn ceiling forces a draw if
// neither side wins first.
func PlayGame(ctx context.Context, workerID int, predictor mcts.Predictor, opts Options) ([]store.TrainingRow, []store.ArchiveTurnRow, GameResult, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano() + int64(workerID)*1000003
	}

	rng := rand.New(mt19937.New())
	rng.Seed(seed)

	state := game.Generate(game.DefaultGenerateConfig(rng.Int63()))
	gameID := fmt.Sprintf("selfplay_%d_%d", seed, workerID)

	// One engine per faction; they share the predictor but keep private
	// trees.
	engines := make([]*mcts.Engine, len(state.Factions))
	for f := range engines {
		engines[f] = mcts.New(predictor,
			mcts.WithSeed(rng.Int63()),
			mcts.WithRootNoise(0.3, 0.25),
		)
	}

	var pending []pendingRow
	var archive []store.ArchiveTurnRow

	for {
		if ctx != nil && ctx.Err() != nil {
			return nil, nil, GameResult{GameID: gameID, Turns: state.TurnCount}, ctx.Err()
		}

		result := rules.Outcome(state)
		if result.Over {
			return finishGame(gameID, pending, archive, result, state)
		}

		faction := state.Turn.Faction
		engine := engines[faction]
		engine.Reset()

		temp := opts.Temperature
		if opts.TemperatureCutoff > 0 && state.TurnCount >= opts.TemperatureCutoff {
			temp = 0
		}

		// Play out one turn: search, record, apply, until end-turn.
		for turnDone := false; !turnDone; {
			probs := engine.ActionProbs(ctx, state, opts.Simulations, temp)

			tensor := convert.Encode(state, faction)
			pending = append(pending, pendingRow{
				row: store.TrainingRow{
					GameID:   gameID,
					Turn:     int32(state.TurnCount),
					Faction:  int32(faction),
					Channels: convert.Channels,
					Width:    convert.Width,
					Height:   convert.Height,
					State:    tensorBytes(*tensor),
					Policy:   policyTarget(probs),
					Source:   opts.Source,
				},
				faction: faction,
			})
			convert.PutFloatBuffer(tensor)

			idx := sampleAction(rng, probs, temp)
			action, err := convert.DecodeAction(idx)
			if err != nil {
				return nil, nil, GameResult{GameID: gameID}, err
			}

			// Archive the position the action was chosen in, not its result,
			// so archived (state, action) pairs line up for retraining.
			snap := store.Snapshot(state)

			next, err := rules.Apply(state, action)
			if err != nil {
				return nil, nil, GameResult{GameID: gameID}, err
			}
			archive = append(archive, store.ArchiveTurnRow{
				GameID:  gameID,
				Turn:    int32(state.TurnCount),
				Faction: int32(faction),
				Action:  action.String(),
				Source:  opts.Source,
			})
			if data, err := store.EncodeSnapshotJSON(snap); err == nil {
				archive[len(archive)-1].StateJSON = data
			}
			if opts.Publisher != nil {
				opts.Publisher.Publish(gameID, snap)
			}

			state = next
			turnDone = action.Type == game.ActionEndTurn || state.Turn.Faction != faction
		}
	}
}

type pendingRow struct {
	row     store.TrainingRow
	faction int8
}

// finishGame stamps the outcome onto every recorded row from its own
// faction's perspective.
func finishGame(gameID string, pending []pendingRow, archive []store.ArchiveTurnRow, result rules.Result, state *game.Scenario) ([]store.TrainingRow, []store.ArchiveTurnRow, GameResult, error) {
	res := GameResult{
		GameID: gameID,
		Draw:   result.Draw,
		Winner: result.Winner,
		Turns:  state.TurnCount,
	}

	rows := make([]store.TrainingRow, len(pending))
	for i, p := range pending {
		p.row.Value = result.Score(p.faction)
		rows[i] = p.row
	}
	for i := range archive {
		archive[i].Value = result.Score(int8(archive[i].Faction))
	}

	log.Debug().
		Str("game", gameID).
		Bool("draw", res.Draw).
		Int8("winner", res.Winner).
		Int("turns", res.Turns).
		Msg("self-play game finished")

	return rows, archive, res, nil
}

// sampleAction draws from the search distribution, or takes the argmax at
// temperature 0.
func sampleAction(rng *rand.Rand, probs []float64, temperature float64) int {
	if temperature == 0 {
		best := 0
		for a, p := range probs {
			if p > probs[best] {
				best = a
			}
		}
		return best
	}

	r := rng.Float64()
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

func tensorBytes(data []float32) []byte {
	buf := make([]byte, len(data)*convert.BytesPerFloat)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*convert.BytesPerFloat:], math.Float32bits(v))
	}
	return buf
}

func policyTarget(probs []float64) []float32 {
	out := make([]float32, len(probs))
	for i, p := range probs {
		out[i] = float32(p)
	}
	return out
}
