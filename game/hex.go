package game

// Hex neighbor offsets for an even-q offset grid: columns are staggered so
// the neighbor set depends on column parity.
var (
	evenColOffsets = [6][2]int{{-1, 0}, {-1, 1}, {0, 1}, {1, 0}, {0, -1}, {-1, -1}}
	oddColOffsets  = [6][2]int{{-1, 0}, {0, 1}, {1, 1}, {1, 0}, {0, -1}, {1, -1}}
)

// Neighbors appends the indices of the up to six tiles adjacent to idx to
// buf and returns the extended slice. Pass a reusable buffer to avoid
// allocation in hot paths.
func (s *Scenario) Neighbors(idx int, buf []int) []int {
	row := idx / s.Size
	col := idx % s.Size

	offsets := &evenColOffsets
	if col%2 == 1 {
		offsets = &oddColOffsets
	}

	for _, o := range offsets {
		r, c := row+o[0], col+o[1]
		if r < 0 || r >= s.Size || c < 0 || c >= s.Size {
			continue
		}
		buf = append(buf, r*s.Size+c)
	}
	return buf
}

// Adjacent reports whether tiles a and b share a hex edge.
func (s *Scenario) Adjacent(a, b int) bool {
	var buf [6]int
	for _, n := range s.Neighbors(a, buf[:0]) {
		if n == b {
			return true
		}
	}
	return false
}
