package coterie

import (
	"fmt"
	"math"
	"sort"

	"sanders/internal/mutex"
)

// Kind names a coterie layout.
type Kind string

const (
	// KindFull gives every node the whole member set as its coterie.
	KindFull Kind = "full"
	// KindGrid lays members out on a square grid; a coterie is the
	// node's row plus its column.
	KindGrid Kind = "grid"
)

// New builds a provider of the given kind over ids.
func New(kind Kind, ids []mutex.ID) (mutex.CoterieProvider, error) {
	switch kind {
	case KindFull, "":
		return NewFullMesh(ids), nil
	case KindGrid:
		return NewGrid(ids)
	default:
		return nil, fmt.Errorf("unknown coterie kind %q (expected full or grid)", kind)
	}
}

// FullMesh is the provider where every coterie is the whole member set.
type FullMesh struct {
	ids   []mutex.ID
	known map[mutex.ID]bool
}

// NewFullMesh creates a full-mesh provider. Duplicate ids are ignored.
func NewFullMesh(ids []mutex.ID) *FullMesh {
	sorted := sortedUnique(ids)
	known := make(map[mutex.ID]bool, len(sorted))
	for _, id := range sorted {
		known[id] = true
	}
	return &FullMesh{ids: sorted, known: known}
}

// CoterieOf returns every member, or nil if id is not a member.
func (f *FullMesh) CoterieOf(id mutex.ID) []mutex.ID {
	if !f.known[id] {
		return nil
	}
	return append([]mutex.ID(nil), f.ids...)
}

// Grid is the row/column provider. Members sorted by id are placed on a
// k x k matrix: the i-th member sits at row i mod k, column i div k.
type Grid struct {
	size int
	ids  []mutex.ID
	pos  map[mutex.ID]int
}

// NewGrid creates a grid provider. The number of distinct ids must be a
// perfect square; otherwise some row and column pairs have no shared member.
func NewGrid(ids []mutex.ID) (*Grid, error) {
	sorted := sortedUnique(ids)
	if len(sorted) == 0 {
		return nil, fmt.Errorf("grid coterie requires at least one member")
	}
	k := int(math.Sqrt(float64(len(sorted))))
	for (k+1)*(k+1) <= len(sorted) {
		k++
	}
	if k*k != len(sorted) {
		return nil, fmt.Errorf("grid coterie requires a perfect square member count, got %d", len(sorted))
	}

	pos := make(map[mutex.ID]int, len(sorted))
	for i, id := range sorted {
		pos[id] = i
	}
	return &Grid{size: k, ids: sorted, pos: pos}, nil
}

// Size returns the grid side length.
func (g *Grid) Size() int {
	return g.size
}

// Position returns the row and column of id.
func (g *Grid) Position(id mutex.ID) (row, column int, ok bool) {
	i, ok := g.pos[id]
	if !ok {
		return 0, 0, false
	}
	return i % g.size, i / g.size, true
}

// CoterieOf returns the members sharing id's row or column, id included.
func (g *Grid) CoterieOf(id mutex.ID) []mutex.ID {
	row, col, ok := g.Position(id)
	if !ok {
		return nil
	}

	result := make([]mutex.ID, 0, 2*g.size-1)
	for _, other := range g.ids {
		r, c, _ := g.Position(other)
		if r == row || c == col {
			result = append(result, other)
		}
	}
	return result
}

// Validate checks that every member has a non-empty coterie made of known
// members and that every pair of coteries intersects.
func Validate(p mutex.CoterieProvider, ids []mutex.ID) error {
	members := sortedUnique(ids)
	known := make(map[mutex.ID]bool, len(members))
	for _, id := range members {
		known[id] = true
	}

	sets := make(map[mutex.ID]map[mutex.ID]bool, len(members))
	for _, id := range members {
		c := p.CoterieOf(id)
		if len(c) == 0 {
			return fmt.Errorf("member %s has an empty coterie", id)
		}
		set := make(map[mutex.ID]bool, len(c))
		for _, v := range c {
			if !known[v] {
				return fmt.Errorf("coterie of %s contains unknown member %s", id, v)
			}
			set[v] = true
		}
		sets[id] = set
	}

	for i, a := range members {
		for _, b := range members[i+1:] {
			if !intersects(sets[a], sets[b]) {
				return fmt.Errorf("coteries of %s and %s do not intersect", a, b)
			}
		}
	}
	return nil
}

func intersects(a, b map[mutex.ID]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for id := range a {
		if b[id] {
			return true
		}
	}
	return false
}

// sortedUnique returns ids sorted and deduplicated. Empty ids are dropped.
func sortedUnique(ids []mutex.ID) []mutex.ID {
	seen := make(map[mutex.ID]bool, len(ids))
	out := make([]mutex.ID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
