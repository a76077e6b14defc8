// archive2train rebuilds training samples from archived games. Archives
// store model-agnostic JSON snapshots, so re-running this after a codec
// change refreshes the whole training set without replaying anything.
//
// Archives carry no search distribution, only the chosen action, so the
// policy target is a one-hot on that action.
package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/convert"
	"github.com/tmarkus/hexzero/game"
	"github.com/tmarkus/hexzero/store"
)

func main() {
	inDir := flag.String("in-dir", "", "Directory containing archive parquet shards")
	outDir := flag.String("out-dir", "", "Output directory for training parquet shards")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-in-dir and -out-dir are required")
		os.Exit(2)
	}

	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}

	if err := os.MkdirAll(absOut, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create out-dir")
	}

	// Clean old outputs to avoid unbounded growth across reruns.
	_ = filepath.WalkDir(absOut, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			_ = os.Remove(path)
		}
		return nil
	})

	var inputs []string
	_ = filepath.WalkDir(absIn, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})

	if len(inputs) == 0 {
		log.Fatal().Str("dir", absIn).Msg("no parquet inputs found")
	}

	convertedFiles := 0
	totalRows := 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := convertOne(inPath, outPath)
		if err != nil {
			log.Error().Err(err).Str("file", inPath).Msg("convert failed")
			continue
		}
		if n > 0 {
			convertedFiles++
			totalRows += n
		}
	}

	if convertedFiles == 0 {
		log.Fatal().Msg("no output written (no convertible rows)")
	}
	log.Info().Int("files", convertedFiles).Int("rows", totalRows).Msg("conversion complete")
}

func convertOne(inPath, outPath string) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.ArchiveTurnRow](inF)
	defer reader.Close()

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	writer := parquet.NewGenericWriter[store.TrainingRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("state"),
	)
	writer.SetKeyValueMetadata("schema", "training_row_v1")

	defer func() {
		_ = writer.Close()
		_ = outF.Close()
	}()

	buf := make([]store.ArchiveTurnRow, 256)
	outBuf := make([]store.TrainingRow, 0, 2048)
	rowsWritten := 0
	skipped := 0

	flush := func() error {
		if len(outBuf) == 0 {
			return nil
		}
		if _, err := writer.Write(outBuf); err != nil {
			return err
		}
		rowsWritten += len(outBuf)
		outBuf = outBuf[:0]
		return nil
	}

	for {
		n, readErr := reader.Read(buf)
		for i := 0; i < n; i++ {
			row, err := trainingRow(buf[i])
			if err != nil {
				skipped++
				continue
			}
			outBuf = append(outBuf, row)
			if len(outBuf) >= 2048 {
				if err := flush(); err != nil {
					return 0, err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return 0, readErr
		}
	}

	if err := flush(); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}
	if err := outF.Sync(); err != nil {
		return 0, err
	}
	if err := outF.Close(); err != nil {
		return 0, err
	}

	if skipped > 0 {
		log.Warn().Str("file", inPath).Int("skipped", skipped).Msg("rows skipped")
	}

	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}

// trainingRow re-encodes one archived turn as a training sample.
func trainingRow(row store.ArchiveTurnRow) (store.TrainingRow, error) {
	var snap store.ScenarioSnapshot
	if err := json.Unmarshal(row.StateJSON, &snap); err != nil {
		return store.TrainingRow{}, err
	}
	if snap.Size != convert.Width {
		return store.TrainingRow{}, fmt.Errorf("board size %d is not encodable", snap.Size)
	}

	state, err := store.SnapshotScenario(snap, game.DefaultLimits())
	if err != nil {
		return store.TrainingRow{}, err
	}

	action, err := game.ParseAction(row.Action)
	if err != nil {
		return store.TrainingRow{}, err
	}
	idx, err := convert.EncodeAction(action)
	if err != nil {
		return store.TrainingRow{}, err
	}

	tensor := convert.Encode(state, int8(row.Faction))
	data := make([]byte, convert.BufferSize)
	for i, v := range *tensor {
		putFloat32(data[i*convert.BytesPerFloat:], v)
	}
	convert.PutFloatBuffer(tensor)

	policy := make([]float32, convert.ActionSize)
	policy[idx] = 1

	return store.TrainingRow{
		GameID:   row.GameID,
		Turn:     row.Turn,
		Faction:  row.Faction,
		Channels: convert.Channels,
		Width:    convert.Width,
		Height:   convert.Height,
		State:    data,
		Policy:   policy,
		Value:    row.Value,
		Source:   row.Source,
	}, nil
}

func putFloat32(b []byte, v float32) {
	bits := math.Float32bits(v)
	binary.LittleEndian.PutUint32(b, bits)
}
