package model

import (
	"reflect"
	"testing"
)

func TestNormalizeDirection(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: 0},
		{in: 7, want: 7},
		{in: 8, want: 0},
		{in: -2, want: 6},
		{in: 13, want: 5},
	}
	for _, c := range cases {
		if got := NormalizeDirection(c.in); got != c.want {
			t.Fatalf("NormalizeDirection(%d)=%d want %d", c.in, got, c.want)
		}
	}
	if Opposite(North) != South || Opposite(West) != East || Opposite(1) != 5 {
		t.Fatalf("opposite mismatch")
	}
}

func TestRotatedSize_SwapsOnlyNonSquareOnQuarterTurns(t *testing.T) {
	base := Size{X: 2, Y: 1}
	for d := 0; d < 8; d++ {
		got := RotatedSize(base, d)
		swapped := got == Size{X: 1, Y: 2}
		if swapped != (d == East || d == West) {
			t.Fatalf("dir %d: size=%+v", d, got)
		}
	}
	if got := RotatedSize(Size{X: 3, Y: 3}, East); got != (Size{X: 3, Y: 3}) {
		t.Fatalf("square size changed: %+v", got)
	}
}

func TestAreaCells(t *testing.T) {
	x0, y0, x1, y1 := AreaAt(Position{X: 0.5, Y: 0.5}, Size{X: 1, Y: 1}).Cells()
	if x0 != 0 || y0 != 0 || x1 != 1 || y1 != 1 {
		t.Fatalf("1x1 cells=(%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
	x0, y0, x1, y1 = AreaAt(Position{X: 2, Y: 1.5}, Size{X: 2, Y: 1}).Cells()
	if x0 != 1 || y0 != 1 || x1 != 3 || y1 != 2 {
		t.Fatalf("2x1 cells=(%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
}

func TestRotateOffset(t *testing.T) {
	dx, dy := RotateOffset(0, -1, 1)
	if dx != 1 || dy != 0 {
		t.Fatalf("north rotated once = (%d,%d)", dx, dy)
	}
	dx, dy = RotateOffset(0, -1, -1)
	if dx != -1 || dy != 0 {
		t.Fatalf("north rotated back = (%d,%d)", dx, dy)
	}
}

func TestConnections_WithWithout(t *testing.T) {
	var c Connections
	c = c.With(Side1, WireRed, ConnectionRef{EntityID: 2})
	c = c.With(Side1, WireRed, ConnectionRef{EntityID: 2})
	c = c.With(Side1, WireGreen, ConnectionRef{EntityID: 3})
	if got := c.EntityIDs(); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("ids=%v", got)
	}
	if len(c[Side1][WireRed]) != 1 {
		t.Fatalf("duplicate link stored: %+v", c)
	}

	less := c.Without(2)
	if less.References(2) || !less.References(3) {
		t.Fatalf("without(2)=%+v", less)
	}
	if !c.References(2) {
		t.Fatalf("Without mutated the receiver")
	}
	if c.Without(2).Without(3) != nil {
		t.Fatalf("expected nil when nothing is left")
	}
}

func TestEntityClone_IsDeep(t *testing.T) {
	e := Entity{
		EntityNumber: 1,
		Items:        map[string]int{"speed-module": 2},
		Filters:      []Filter{{Index: 1, Name: "iron-plate"}},
		Connections:  Connections{}.With(Side1, WireRed, ConnectionRef{EntityID: 9}),
		ControlBehavior: &ControlBehavior{
			DeciderConditions: &DeciderConditions{Comparator: "<"},
		},
	}
	c := e.Clone()
	c.Items["speed-module"] = 1
	c.Filters[0].Name = "copper-plate"
	c.Connections[Side1][WireRed][0].EntityID = 10
	c.ControlBehavior.DeciderConditions.Comparator = ">"

	if e.Items["speed-module"] != 2 || e.Filters[0].Name != "iron-plate" ||
		e.Connections[Side1][WireRed][0].EntityID != 9 || e.ControlBehavior.DeciderConditions.Comparator != "<" {
		t.Fatalf("clone shares state with original: %+v", e)
	}
}

func TestCollection_PersistentUpdates(t *testing.T) {
	v0 := NewCollection(Entity{EntityNumber: 2, Name: "pipe"}, Entity{EntityNumber: 1, Name: "pipe"})
	v1 := v0.Set(Entity{EntityNumber: 3, Name: "inserter"})
	v2 := v1.Delete(1)

	if v0.Len() != 2 || v1.Len() != 3 || v2.Len() != 2 {
		t.Fatalf("lens=%d,%d,%d", v0.Len(), v1.Len(), v2.Len())
	}
	if !v1.Has(1) || v2.Has(1) {
		t.Fatalf("delete leaked into older version")
	}
	if got := v1.Numbers(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("numbers=%v", got)
	}
	if v1.Same(v2) || !v2.Same(v2) {
		t.Fatalf("Same mismatch")
	}

	var zero Collection
	if zero.Len() != 0 || zero.Has(1) {
		t.Fatalf("zero collection not empty")
	}
	if z1 := zero.Set(Entity{EntityNumber: 5}); z1.Len() != 1 {
		t.Fatalf("set on zero collection")
	}
}
