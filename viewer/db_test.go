package viewer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmarkus/hexzero/store"
)

func TestGamesReportsFactionZeroLoss(t *testing.T) {
	dir := t.TempDir()

	rows := []store.ArchiveTurnRow{
		{GameID: "g-loss", Turn: 0, Faction: 0, Action: "endturn", StateJSON: []byte(`{}`), Value: -1, Source: "test"},
		{GameID: "g-loss", Turn: 1, Faction: 1, Action: "endturn", StateJSON: []byte(`{}`), Value: 1, Source: "test"},
		{GameID: "g-win", Turn: 0, Faction: 0, Action: "endturn", StateJSON: []byte(`{}`), Value: 1, Source: "test"},
		{GameID: "g-win", Turn: 1, Faction: 1, Action: "endturn", StateJSON: []byte(`{}`), Value: -1, Source: "test"},
	}
	_, err := store.WriteArchiveParquet(dir, rows)
	require.NoError(t, err)

	db := OpenDB(dir, time.Minute)
	defer db.Close()

	games, err := db.Games(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, games, 2)

	byID := map[string]GameSummary{}
	for _, g := range games {
		byID[g.GameID] = g
	}
	require.Equal(t, float32(-1), byID["g-loss"].Result, "a lost game reports the faction 0 value")
	require.Equal(t, float32(1), byID["g-win"].Result)
	require.Equal(t, int64(2), byID["g-loss"].Turns)
}
