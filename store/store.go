// Package store persists self-play output as parquet: training samples for
// the learner and per-turn archive rows for replay and analysis.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/tmarkus/hexzero/game"
)

// TrainingRow is a single supervised training sample.
//
// State is the canonical CHW tensor for the acting faction, flattened to
// little-endian float32 bytes. Policy is the target distribution over the
// full action space (normalized MCTS visit counts). Value is the final
// game outcome in [-1, 1] from the acting faction's perspective.
type TrainingRow struct {
	GameID   string    `parquet:"game_id,dict"`
	Turn     int32     `parquet:"turn"`
	Faction  int32     `parquet:"faction"`
	Channels int32     `parquet:"channels"`
	Width    int32     `parquet:"width"`
	Height   int32     `parquet:"height"`
	State    []byte    `parquet:"state"`
	Policy   []float32 `parquet:"policy"`
	Value    float32   `parquet:"value"`
	Source   string    `parquet:"source,dict"`
}

// ArchiveTurnRow is one (game, turn) snapshot for long-term storage. The
// scenario snapshot is model-agnostic JSON so future trainers can
// featurize it however they like.
type ArchiveTurnRow struct {
	GameID    string  `parquet:"game_id,dict"`
	Turn      int32   `parquet:"turn"`
	Faction   int32   `parquet:"faction"`
	Action    string  `parquet:"action,dict"`
	StateJSON []byte  `parquet:"state_json,zstd"`
	Value     float32 `parquet:"value"`
	Source    string  `parquet:"source,dict"`
}

// ScenarioSnapshot is the JSON shape stored in ArchiveTurnRow.StateJSON.
type ScenarioSnapshot struct {
	Size      int            `json:"size"`
	Tiles     []TileSnapshot `json:"tiles"`
	Factions  []string       `json:"factions"`
	Resources []int          `json:"resources"`
	Faction   int            `json:"faction"`
	Actions   int            `json:"actions_this_turn"`
	TurnCount int            `json:"turn_count"`
}

type TileSnapshot struct {
	Water   bool   `json:"water,omitempty"`
	Owner   int    `json:"owner"`
	Unit    string `json:"unit,omitempty"`
	CanMove bool   `json:"can_move,omitempty"`
}

// Snapshot flattens a scenario into its archive JSON form.
func Snapshot(s *game.Scenario) ScenarioSnapshot {
	snap := ScenarioSnapshot{
		Size:      s.Size,
		Tiles:     make([]TileSnapshot, len(s.Tiles)),
		Factions:  s.Factions,
		Resources: make([]int, len(s.Factions)),
		Faction:   int(s.Turn.Faction),
		Actions:   s.Turn.ActionsTaken,
		TurnCount: s.TurnCount,
	}
	for i := range s.Tiles {
		t := &s.Tiles[i]
		snap.Tiles[i] = TileSnapshot{
			Water:   t.Water,
			Owner:   int(t.Owner),
			CanMove: t.CanMove,
		}
		if t.Unit != game.UnitNone {
			snap.Tiles[i].Unit = t.Unit.String()
		}
	}
	for f := range s.Factions {
		snap.Resources[f] = s.FactionResources(int8(f))
	}
	return snap
}

// SnapshotScenario reconstructs a scenario from its archive snapshot.
// Province boundaries are not stored, so each faction's tiles come back as
// one province holding the faction's full treasury.
func SnapshotScenario(snap ScenarioSnapshot, limits game.Limits) (*game.Scenario, error) {
	if snap.Size <= 0 || len(snap.Tiles) != snap.Size*snap.Size {
		return nil, fmt.Errorf("malformed snapshot: size %d with %d tiles", snap.Size, len(snap.Tiles))
	}

	s := game.Empty(snap.Size, snap.Factions, limits)
	s.Turn.Faction = int8(snap.Faction)
	s.Turn.ActionsTaken = snap.Actions
	s.TurnCount = snap.TurnCount

	tilesByFaction := make(map[int8][]int)
	for i, ts := range snap.Tiles {
		t := &s.Tiles[i]
		t.Water = ts.Water
		t.Owner = int8(ts.Owner)
		if ts.Unit != "" {
			unit, err := game.ParseUnitType(ts.Unit)
			if err != nil {
				return nil, fmt.Errorf("tile %d: %w", i, err)
			}
			t.Unit = unit
		}
		t.CanMove = ts.CanMove
		if t.Owner != game.NoOwner {
			tilesByFaction[t.Owner] = append(tilesByFaction[t.Owner], i)
		}
	}

	for f := range snap.Factions {
		tiles := tilesByFaction[int8(f)]
		resources := 0
		if f < len(snap.Resources) {
			resources = snap.Resources[f]
		}
		p := &game.Province{
			Faction:   int8(f),
			Tiles:     tiles,
			Resources: resources,
			Active:    len(tiles) >= 2,
		}
		if !p.Active {
			p.Resources = 0
		}
		s.Provinces = append(s.Provinces, p)
	}
	return s, nil
}

// EncodeSnapshotJSON serializes a snapshot for storage.
func EncodeSnapshotJSON(snap ScenarioSnapshot) ([]byte, error) {
	if snap.Size <= 0 {
		return nil, fmt.Errorf("invalid snapshot size: %d", snap.Size)
	}
	return json.Marshal(snap)
}

// WriteTrainingParquet writes rows to outPath via a temp file and atomic
// rename.
func WriteTrainingParquet(outPath string, rows []TrainingRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	// Skip page bounds for the raw tensor blobs; they only bloat metadata.
	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("state"),
		parquet.KeyValueMetadata("schema", "training_row_v1"),
	); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteArchiveParquet writes archive rows to a timestamped batch file in
// outDir and returns its path.
func WriteArchiveParquet(outDir string, rows []ArchiveTurnRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("archive_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := finalPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "archive_turn_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// ReadTrainingParquet loads all training rows from a parquet file.
func ReadTrainingParquet(path string) ([]TrainingRow, error) {
	rows, err := parquet.ReadFile[TrainingRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
