package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	s := Empty(6, []string{"red", "blue"}, DefaultLimits())
	s.Tiles[0].Owner = 0
	s.Tiles[1].Owner = 0
	s.Provinces = append(s.Provinces, &Province{
		Faction:   0,
		Tiles:     []int{0, 1},
		Resources: 30,
		Active:    true,
	})

	c := s.Clone()

	c.Tiles[0].Owner = 1
	c.Provinces[0].Resources = 99
	c.Provinces[0].Tiles[0] = 5
	c.Factions[0] = "green"

	require.Equal(t, int8(0), s.Tiles[0].Owner, "clone tile edits must not leak back")
	require.Equal(t, 30, s.Provinces[0].Resources, "clone province edits must not leak back")
	require.Equal(t, 0, s.Provinces[0].Tiles[0], "clone province tile lists must be independent")
	require.Equal(t, "red", s.Factions[0], "clone faction names must be independent")
}

func TestNeighborsStayOnBoard(t *testing.T) {
	s := Empty(6, nil, DefaultLimits())

	var buf [6]int
	for idx := range s.Tiles {
		for _, n := range s.Neighbors(idx, buf[:0]) {
			require.GreaterOrEqual(t, n, 0)
			require.Less(t, n, len(s.Tiles))
			require.NotEqual(t, idx, n)
		}
	}

	// Corner tiles have fewer neighbors than interior tiles.
	corner := len(s.Neighbors(0, buf[:0]))
	interior := len(s.Neighbors(s.Index(3, 3), buf[:0]))
	require.Less(t, corner, interior)
	require.Equal(t, 6, interior)
}

func TestAdjacencyIsSymmetric(t *testing.T) {
	s := Empty(6, nil, DefaultLimits())
	var buf [6]int
	for idx := range s.Tiles {
		for _, n := range s.Neighbors(idx, buf[:0]) {
			require.True(t, s.Adjacent(n, idx), "tile %d -> %d adjacency must be symmetric", idx, n)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(DefaultGenerateConfig(42))
	b := Generate(DefaultGenerateConfig(42))

	require.Equal(t, a.Tiles, b.Tiles, "same seed must produce an identical board")
	require.Equal(t, len(a.Provinces), len(b.Provinces))
	for i := range a.Provinces {
		require.Equal(t, a.Provinces[i].Tiles, b.Provinces[i].Tiles)
	}

	c := Generate(DefaultGenerateConfig(43))
	require.NotEqual(t, a.Tiles, c.Tiles, "different seeds should produce different boards")
}

func TestGeneratePlacesBothFactions(t *testing.T) {
	s := Generate(DefaultGenerateConfig(7))

	require.Len(t, s.Provinces, 2)
	for f, p := range s.Provinces {
		require.Equal(t, int8(f), p.Faction)
		require.True(t, p.Active, "starting provinces must be active")
		require.Equal(t, 30, p.Resources)

		capitals := 0
		for _, idx := range p.Tiles {
			require.False(t, s.Tiles[idx].Water)
			require.Equal(t, int8(f), s.Tiles[idx].Owner)
			if s.Tiles[idx].Unit == UnitCapital {
				capitals++
			}
		}
		require.Equal(t, 1, capitals, "each starting province gets exactly one capital")
	}
}

func TestFactionResourcesSkipsInactive(t *testing.T) {
	s := Empty(6, []string{"red", "blue"}, DefaultLimits())
	s.Provinces = []*Province{
		{Faction: 0, Tiles: []int{0, 1}, Resources: 10, Active: true},
		{Faction: 0, Tiles: []int{5}, Resources: 7, Active: false},
		{Faction: 1, Tiles: []int{30, 31}, Resources: 3, Active: true},
	}

	require.Equal(t, 10, s.FactionResources(0))
	require.Equal(t, 3, s.FactionResources(1))
}

func TestUnitProperties(t *testing.T) {
	require.True(t, UnitSoldier3.IsSoldier())
	require.False(t, UnitFarm.IsSoldier())
	require.Equal(t, 3, UnitSoldier3.SoldierTier())
	require.Equal(t, UnitSoldier3, SoldierByTier(3))

	// Defense exceeds attack by one except at the tier 4 cap.
	for tier := 1; tier <= 3; tier++ {
		u := SoldierByTier(tier)
		require.Equal(t, tier+1, u.DefensePower())
	}
	require.Equal(t, 4, UnitSoldier4.DefensePower())

	require.Equal(t, -4, UnitFarm.Upkeep())
	require.Equal(t, 12, UnitFarm.BuildCost(0))
	require.Equal(t, 16, UnitFarm.BuildCost(2))
}
