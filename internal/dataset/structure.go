// Package dataset discovers labelled benchmark datasets on disk and reads the
// molecular structures they contain.
package dataset

// Structure is one configuration: element symbols, Cartesian positions and
// the key/value info from its comment line.
type Structure struct {
	Symbols   []string
	Positions [][3]float64
	Info      map[string]any
}

func (s *Structure) Len() int { return len(s.Symbols) }

// Heavy returns the indices and positions of every non-hydrogen atom.
func (s *Structure) Heavy() ([]int, [][3]float64) {
	var idx []int
	var pos [][3]float64
	for i, sym := range s.Symbols {
		if sym == "H" {
			continue
		}
		idx = append(idx, i)
		pos = append(pos, s.Positions[i])
	}
	return idx, pos
}
