// Package viewer serves stored self-play archives over HTTP and streams
// live games over websocket. Archive queries run as DuckDB SQL directly
// over the parquet files on disk.
package viewer

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog/log"
)

// GameSummary is one archived game in the index listing.
type GameSummary struct {
	GameID string  `json:"game_id"`
	Turns  int64   `json:"turns"`
	Result float32 `json:"result"` // final value for faction 0
	Source string  `json:"source"`
}

// TurnFrame is a single archived turn of a game.
type TurnFrame struct {
	Turn      int32   `json:"turn"`
	Faction   int32   `json:"faction"`
	Action    string  `json:"action"`
	StateJSON string  `json:"state"`
	Value     float32 `json:"value"`
}

// DB wraps a cached DuckDB connection over the archive directory. The
// connection is refreshed periodically so newly finalized parquet batches
// become visible without a restart.
type DB struct {
	root        string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

// OpenDB prepares a DuckDB handle over root/*.parquet archive files.
func OpenDB(root string, refreshRate time.Duration) *DB {
	if refreshRate <= 0 {
		refreshRate = 30 * time.Second
	}
	return &DB{root: root, refreshRate: refreshRate}
}

func (d *DB) get() (*sql.DB, error) {
	d.mu.RLock()
	if d.db != nil && time.Since(d.lastRefresh) < d.refreshRate {
		db := d.db
		d.mu.RUnlock()
		return db, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil && time.Since(d.lastRefresh) < d.refreshRate {
		return d.db, nil
	}

	started := time.Now()
	newDB, err := openArchiveView(d.root)
	if err != nil {
		return nil, err
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	d.db = newDB
	d.lastRefresh = time.Now()
	log.Debug().Dur("elapsed", time.Since(started)).Msg("archive view refreshed")
	return d.db, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func openArchiveView(root string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	glob := filepath.Join(root, "archive_*.parquet")
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE VIEW archive AS SELECT * FROM read_parquet('%s')`,
		escapeSQLString(glob),
	)
	if _, err := db.Exec(stmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive view: %w", err)
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Games lists archived games, newest first.
func (d *DB) Games(ctx context.Context, limit int) ([]GameSummary, error) {
	db, err := d.get()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `
		SELECT game_id,
		       COUNT(*) AS turns,
		       COALESCE(MAX(CASE WHEN faction = 0 THEN value END), 0) AS result,
		       MAX(source) AS source
		FROM archive
		GROUP BY game_id
		ORDER BY game_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.Turns, &g.Result, &g.Source); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Turns returns every archived frame of a game in play order.
func (d *DB) Turns(ctx context.Context, gameID string) ([]TurnFrame, error) {
	db, err := d.get()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT turn, faction, action, CAST(state_json AS VARCHAR), value
		FROM archive
		WHERE game_id = ?
		ORDER BY turn, faction`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnFrame
	for rows.Next() {
		var t TurnFrame
		if err := rows.Scan(&t.Turn, &t.Faction, &t.Action, &t.StateJSON, &t.Value); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
