package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/game"
)

func sampleRows() []TrainingRow {
	return []TrainingRow{
		{
			GameID:   "g1",
			Turn:     0,
			Faction:  0,
			Channels: 23,
			Width:    6,
			Height:   6,
			State:    []byte{1, 2, 3, 4},
			Policy:   []float32{0.25, 0.75},
			Value:    1,
			Source:   "test",
		},
		{
			GameID:  "g1",
			Turn:    1,
			Faction: 1,
			State:   []byte{5, 6},
			Policy:  []float32{1},
			Value:   -1,
			Source:  "test",
		},
	}
}

func TestTrainingParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.parquet")
	rows := sampleRows()

	require.NoError(t, WriteTrainingParquet(path, rows))

	got, err := ReadTrainingParquet(path)
	require.NoError(t, err)
	require.Equal(t, rows, got)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "the temp file must be renamed away")
}

func TestBatchWriterFinalize(t *testing.T) {
	dir := t.TempDir()

	w, err := NewBatchWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.WriteRows(sampleRows()))
	require.NoError(t, w.WriteRows(sampleRows()))
	require.Equal(t, 2, w.BufferedGames())
	require.Equal(t, 4, w.BufferedRows())

	path, rows, games, err := w.Finalize()
	require.NoError(t, err)
	require.Equal(t, 4, rows)
	require.Equal(t, 2, games)

	got, err := ReadTrainingParquet(path)
	require.NoError(t, err)
	require.Len(t, got, 4)
}

func TestBatchWriterEmptyFinalize(t *testing.T) {
	dir := t.TempDir()

	w, err := NewBatchWriter(dir)
	require.NoError(t, err)

	path, rows, games, err := w.Finalize()
	require.NoError(t, err)
	require.Empty(t, path)
	require.Zero(t, rows)
	require.Zero(t, games)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.True(t, e.IsDir(), "no stray files after an empty finalize: %s", e.Name())
	}
}

func TestWriteArchiveParquet(t *testing.T) {
	dir := t.TempDir()

	rows := []ArchiveTurnRow{
		{GameID: "g1", Turn: 0, Faction: 0, Action: "end_turn", StateJSON: []byte(`{}`), Value: 1, Source: "test"},
	}
	path, err := WriteArchiveParquet(dir, rows)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Contains(t, filepath.Base(path), "archive_")
}

func TestSnapshotJSON(t *testing.T) {
	s := game.Empty(6, []string{"red", "blue"}, game.DefaultLimits())
	s.Tiles[0].Owner = 0
	s.Tiles[0].Unit = game.UnitCapital
	s.Tiles[1].Owner = 0
	s.Tiles[10].Water = true
	s.Provinces = []*game.Province{
		{Faction: 0, Tiles: []int{0, 1}, Resources: 12, Active: true},
	}
	s.TurnCount = 3

	data, err := EncodeSnapshotJSON(Snapshot(s))
	require.NoError(t, err)

	var got ScenarioSnapshot
	require.NoError(t, json.Unmarshal(data, &got))

	require.Equal(t, 6, got.Size)
	require.Len(t, got.Tiles, 36)
	require.Equal(t, "capital", got.Tiles[0].Unit)
	require.True(t, got.Tiles[10].Water)
	require.Equal(t, []int{12, 0}, got.Resources)
	require.Equal(t, 3, got.TurnCount)

	_, err = EncodeSnapshotJSON(ScenarioSnapshot{})
	require.Error(t, err, "a zero-size snapshot is malformed")
}
