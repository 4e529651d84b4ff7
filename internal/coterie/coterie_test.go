package coterie

import (
	"fmt"
	"testing"

	"sanders/internal/mutex"
)

func ids(n int) []mutex.ID {
	out := make([]mutex.ID, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, mutex.ID(fmt.Sprintf("n%d", i)))
	}
	return out
}

func TestFullMesh_CoterieOf(t *testing.T) {
	p := NewFullMesh([]mutex.ID{"c", "a", "b", "a"})

	got := p.CoterieOf("b")
	want := []mutex.ID{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("CoterieOf(b) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CoterieOf(b)[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if p.CoterieOf("z") != nil {
		t.Error("Unknown member should have no coterie")
	}
}

func TestFullMesh_ReturnsCopy(t *testing.T) {
	p := NewFullMesh([]mutex.ID{"a", "b"})
	c := p.CoterieOf("a")
	c[0] = "mutated"

	if p.CoterieOf("a")[0] != "a" {
		t.Error("CoterieOf should return a copy")
	}
}

func TestNewGrid_RequiresPerfectSquare(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{2, true},
		{4, false},
		{5, true},
		{9, false},
		{16, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			_, err := NewGrid(ids(tt.n))
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGrid(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
		})
	}
}

func TestGrid_RowAndColumn(t *testing.T) {
	// Sorted: a b c d -> a(0,0) b(1,0) c(0,1) d(1,1)
	g, err := NewGrid([]mutex.ID{"d", "c", "b", "a"})
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	if g.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", g.Size())
	}

	row, col, ok := g.Position("c")
	if !ok || row != 0 || col != 1 {
		t.Errorf("Position(c) = (%d,%d,%v), want (0,1,true)", row, col, ok)
	}

	got := g.CoterieOf("a")
	want := map[mutex.ID]bool{"a": true, "b": true, "c": true}
	if len(got) != len(want) {
		t.Fatalf("CoterieOf(a) = %v, want a, b, c", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("CoterieOf(a) contains unexpected %s", id)
		}
	}
}

func TestGrid_CoterieSize(t *testing.T) {
	g, err := NewGrid(ids(9))
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	for _, id := range ids(9) {
		if n := len(g.CoterieOf(id)); n != 5 {
			t.Errorf("CoterieOf(%s) has %d members, want 5", id, n)
		}
	}
}

func TestValidate(t *testing.T) {
	members := ids(9)
	grid, err := NewGrid(members)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}

	if err := Validate(grid, members); err != nil {
		t.Errorf("Grid should be valid: %v", err)
	}
	if err := Validate(NewFullMesh(members), members); err != nil {
		t.Errorf("Full mesh should be valid: %v", err)
	}

	singletons := providerFunc(func(id mutex.ID) []mutex.ID { return []mutex.ID{id} })
	if err := Validate(singletons, members); err == nil {
		t.Error("Disjoint singleton coteries should be rejected")
	}

	empty := providerFunc(func(id mutex.ID) []mutex.ID { return nil })
	if err := Validate(empty, members); err == nil {
		t.Error("Empty coteries should be rejected")
	}

	stranger := providerFunc(func(id mutex.ID) []mutex.ID { return []mutex.ID{"x"} })
	if err := Validate(stranger, members); err == nil {
		t.Error("Unknown coterie members should be rejected")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(KindFull, ids(3)); err != nil {
		t.Errorf("New(full) error = %v", err)
	}
	if _, err := New(KindGrid, ids(4)); err != nil {
		t.Errorf("New(grid) error = %v", err)
	}
	if _, err := New(KindGrid, ids(3)); err == nil {
		t.Error("New(grid) with 3 members should fail")
	}
	if _, err := New("ring", ids(3)); err == nil {
		t.Error("New with unknown kind should fail")
	}
}

type providerFunc func(mutex.ID) []mutex.ID

func (f providerFunc) CoterieOf(id mutex.ID) []mutex.ID { return f(id) }
