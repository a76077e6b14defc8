package game

import (
	"math/rand"

	"github.com/seehuhn/mt19937"
)

// GenerateConfig controls random scenario generation.
type GenerateConfig struct {
	Size              int
	TargetLandTiles   int
	InitialProvince   int // tiles per starting province
	StartingResources int
	Factions          []string
	Limits            Limits
	Seed              int64
}

// DefaultGenerateConfig is the standard two-faction training setup: a 6x6
// board with roughly 20 land tiles and three-tile starting provinces.
// Starting resources are non-zero so games progress instead of both sides
// passing forever.
func DefaultGenerateConfig(seed int64) GenerateConfig {
	return GenerateConfig{
		Size:              6,
		TargetLandTiles:   20,
		InitialProvince:   3,
		StartingResources: 30,
		Factions:          []string{"red", "blue"},
		Limits:            DefaultLimits(),
		Seed:              seed,
	}
}

// Generate builds a random but reproducible starting scenario: a connected
// land mass of roughly the target size with one starting province per
// faction, placed as far apart as the land mass allows.
func Generate(cfg GenerateConfig) *Scenario {
	rng := rand.New(mt19937.New())
	rng.Seed(cfg.Seed)

	s := Empty(cfg.Size, cfg.Factions, cfg.Limits)

	// All water until carved.
	for i := range s.Tiles {
		s.Tiles[i].Water = true
	}

	carveLand(s, rng, cfg.TargetLandTiles)

	land := landTiles(s)
	if len(land) == 0 {
		return s
	}

	// Place starting provinces at the two land tiles furthest apart,
	// growing each by adjacency.
	anchors := furthestPair(s, land)
	var buf [6]int
	for f := range cfg.Factions {
		if f >= len(anchors) {
			break
		}
		tiles := growCluster(s, anchors[f], cfg.InitialProvince, buf[:0])
		p := &Province{
			Faction:   int8(f),
			Tiles:     tiles,
			Resources: cfg.StartingResources,
			Active:    len(tiles) >= 2,
		}
		for _, t := range tiles {
			s.Tiles[t].Owner = int8(f)
		}
		// Capital on the anchor tile.
		s.Tiles[anchors[f]].Unit = UnitCapital
		s.Provinces = append(s.Provinces, p)
	}

	return s
}

// Empty returns an all-land scenario with no owners, units or resources.
func Empty(size int, factions []string, limits Limits) *Scenario {
	s := &Scenario{
		Size:     size,
		Tiles:    make([]Tile, size*size),
		Factions: append([]string(nil), factions...),
		Limits:   limits,
	}
	for i := range s.Tiles {
		s.Tiles[i].Row = int16(i / size)
		s.Tiles[i].Col = int16(i % size)
		s.Tiles[i].Owner = NoOwner
	}
	return s
}

// carveLand grows a connected land region from a random seed tile via a
// randomized frontier walk until the target count is reached.
func carveLand(s *Scenario, rng *rand.Rand, target int) {
	if target > len(s.Tiles) {
		target = len(s.Tiles)
	}
	start := rng.Intn(len(s.Tiles))
	s.Tiles[start].Water = false
	count := 1

	frontier := []int{start}
	var buf [6]int
	for count < target && len(frontier) > 0 {
		i := rng.Intn(len(frontier))
		idx := frontier[i]

		grew := false
		for _, n := range s.Neighbors(idx, buf[:0]) {
			if s.Tiles[n].Water {
				s.Tiles[n].Water = false
				frontier = append(frontier, n)
				count++
				grew = true
				break
			}
		}
		if !grew {
			frontier[i] = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		}
	}
}

func landTiles(s *Scenario) []int {
	var out []int
	for i := range s.Tiles {
		if !s.Tiles[i].Water {
			out = append(out, i)
		}
	}
	return out
}

// furthestPair picks the two land tiles with maximal squared grid distance,
// scanning in index order so the result is deterministic.
func furthestPair(s *Scenario, land []int) [2]int {
	best := [2]int{land[0], land[0]}
	bestDist := -1
	for _, a := range land {
		for _, b := range land {
			ar, ac := a/s.Size, a%s.Size
			br, bc := b/s.Size, b%s.Size
			d := (ar-br)*(ar-br) + (ac-bc)*(ac-bc)
			if d > bestDist {
				bestDist = d
				best = [2]int{a, b}
			}
		}
	}
	return best
}

// growCluster collects up to n connected unowned land tiles starting at
// anchor.
func growCluster(s *Scenario, anchor, n int, buf []int) []int {
	tiles := []int{anchor}
	seen := map[int]bool{anchor: true}

	for len(tiles) < n {
		grew := false
		for _, t := range tiles {
			for _, nb := range s.Neighbors(t, buf[:0]) {
				if seen[nb] || s.Tiles[nb].Water || s.Tiles[nb].Owner != NoOwner {
					continue
				}
				seen[nb] = true
				tiles = append(tiles, nb)
				grew = true
				break
			}
			if grew {
				break
			}
		}
		if !grew {
			break
		}
	}
	return tiles
}
