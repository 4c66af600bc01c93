package blueprint

import (
	"errors"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/record"
	"beltline.dev/internal/editor/store"
)

func newTestBlueprint(t *testing.T) *Blueprint {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return New(cats, 40, 40, 0)
}

func place(t *testing.T, b *Blueprint, e model.Entity) int {
	t.Helper()
	n, ok, err := b.Place(e)
	if err != nil || !ok {
		t.Fatalf("place %s at %+v: ok=%v err=%v", e.Name, e.Position, ok, err)
	}
	return n
}

func at(x, y float64) model.Position { return model.Position{X: x, Y: y} }

func TestPlace_SecondEntityOnSameCellRejected(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "transport-belt", Position: at(0.5, 0.5)})

	_, ok, err := b.Place(model.Entity{Name: "inserter", Position: at(0.5, 0.5)})
	if err != nil || ok {
		t.Fatalf("second placement: ok=%v err=%v", ok, err)
	}
	if got := b.Grid().Occupants(0, 0); !reflect.DeepEqual(got, []int{n}) {
		t.Fatalf("occupants=%v", got)
	}
	if b.Current().Entities.Len() != 1 {
		t.Fatalf("rejected placement reached the store")
	}
}

func TestPlace_OutOfBoundsAndUnknownKind(t *testing.T) {
	b := newTestBlueprint(t)
	if _, ok, _ := b.Place(model.Entity{Name: "assembling-machine-1", Position: at(0.5, 0.5)}); ok {
		t.Fatalf("3x3 at the corner sticks out")
	}
	if _, _, err := b.Place(model.Entity{Name: "warp-drive", Position: at(5.5, 5.5)}); !errors.Is(err, catalogs.ErrUnknownEntity) {
		t.Fatalf("err=%v", err)
	}
}

func TestPlace_GateStacksOnRail(t *testing.T) {
	b := newTestBlueprint(t)
	rail := place(t, b, model.Entity{Name: "straight-rail", Position: at(4, 4)})
	gate := place(t, b, model.Entity{Name: "gate", Position: at(3.5, 3.5)})
	if got := b.Grid().Occupants(3, 3); !reflect.DeepEqual(got, []int{rail, gate}) {
		t.Fatalf("occupants=%v", got)
	}
	if _, ok, _ := b.Place(model.Entity{Name: "gate", Position: at(3.5, 3.5)}); ok {
		t.Fatalf("gate stacked on gate")
	}
}

func TestMove(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "transport-belt", Position: at(0.5, 0.5)})
	place(t, b, model.Entity{Name: "transport-belt", Position: at(2.5, 0.5)})

	if ok, _ := b.Move(n, at(2.5, 0.5)); ok {
		t.Fatalf("move onto another belt allowed")
	}
	if got := b.Grid().Occupants(0, 0); !reflect.DeepEqual(got, []int{n}) {
		t.Fatalf("failed move changed the grid: %v", got)
	}
	if ok, err := b.Move(n, at(1.5, 0.5)); !ok || err != nil {
		t.Fatalf("move: ok=%v err=%v", ok, err)
	}
	if b.Grid().Occupants(0, 0) != nil || !reflect.DeepEqual(b.Grid().Occupants(1, 0), []int{n}) {
		t.Fatalf("grid not updated after move")
	}
	h := b.History()
	if last := h[len(h)-1]; last.Tag != store.TagMove || last.Label != "Moved entity" {
		t.Fatalf("last entry=%+v", last)
	}
	if _, err := b.Move(99, at(5.5, 5.5)); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("err=%v", err)
	}
}

func TestRotate_NoopKeepsVersion(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "pipe", Position: at(0.5, 0.5)})
	before := b.Current()
	if ok, err := b.Rotate(n, true, model.Position{}, 0); ok || err != nil {
		t.Fatalf("pipe rotate: ok=%v err=%v", ok, err)
	}
	if !b.Current().Entities.Same(before.Entities) || b.Current().Seq != before.Seq {
		t.Fatalf("no-op rotation created a version")
	}
}

func TestRotate_StackedRailRefused(t *testing.T) {
	b := newTestBlueprint(t)
	rail := place(t, b, model.Entity{Name: "straight-rail", Position: at(4, 4)})
	place(t, b, model.Entity{Name: "gate", Position: at(3.5, 3.5)})
	if ok, _ := b.Rotate(rail, true, model.Position{}, 0); ok {
		t.Fatalf("rail with a gate on top rotated")
	}
}

func TestRotate_UndergroundPairIsAtomic(t *testing.T) {
	b := newTestBlueprint(t)
	in := place(t, b, model.Entity{Name: "underground-belt", Direction: model.East, Type: model.DirectionInput, Position: at(0.5, 0.5)})
	out := place(t, b, model.Entity{Name: "underground-belt", Direction: model.East, Type: model.DirectionOutput, Position: at(3.5, 0.5)})
	seq := b.Current().Seq

	if ok, err := b.Rotate(in, true, model.Position{}, out); !ok || err != nil {
		t.Fatalf("rotate: ok=%v err=%v", ok, err)
	}
	if b.Current().Seq != seq+1 {
		t.Fatalf("pair rotation used %d versions", b.Current().Seq-seq)
	}
	a, _ := b.Entity(in)
	c, _ := b.Entity(out)
	if a.Direction != model.West || a.Type != model.DirectionOutput {
		t.Fatalf("primary=%+v", a)
	}
	if c.Direction != model.West || c.Type != model.DirectionInput {
		t.Fatalf("partner=%+v", c)
	}
	h := b.History()
	if last := h[len(h)-1]; !reflect.DeepEqual(last.Affected, []int{in, out}) {
		t.Fatalf("affected=%v", last.Affected)
	}
}

func TestRotate_WhileFloatingStaysOffGrid(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "splitter", Position: at(5, 5.5)})
	b.PickUp(n)
	if ok, _ := b.Rotate(n, false, at(0.5, 0.5), 0); !ok {
		t.Fatalf("rotate while floating refused")
	}
	e, _ := b.Entity(n)
	if e.Direction != model.East || e.Position != at(5.5, 6) {
		t.Fatalf("floating splitter=%+v", e)
	}
	if b.Grid().IsOccupied(n) || b.Grid().Len() != 0 {
		t.Fatalf("floating entity landed on the grid")
	}
	if len(b.History()) != 1 {
		t.Fatalf("moving rotation pushed history")
	}
	if !b.PutBack(n) || !b.Grid().IsOccupied(n) {
		t.Fatalf("put back failed")
	}
}

func TestSetDirection_RespectsFootprint(t *testing.T) {
	b := newTestBlueprint(t)
	pump := place(t, b, model.Entity{Name: "pump", Position: at(2.5, 2)})
	belt := place(t, b, model.Entity{Name: "transport-belt", Position: at(3.5, 2.5)})
	if ok, _ := b.SetDirection(pump, model.East); ok {
		t.Fatalf("turned pump overlaps the belt")
	}
	if err := b.Remove(belt); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, err := b.SetDirection(pump, model.East); !ok || err != nil {
		t.Fatalf("set direction: ok=%v err=%v", ok, err)
	}
	if got := b.Grid().Occupants(1, 1); !reflect.DeepEqual(got, []int{pump}) {
		t.Fatalf("grid not following new footprint: %v", got)
	}
}

func TestRemove_ClearsWires(t *testing.T) {
	b := newTestBlueprint(t)
	p1 := place(t, b, model.Entity{Name: "small-electric-pole", Position: at(0.5, 0.5)})
	p2 := place(t, b, model.Entity{Name: "small-electric-pole", Position: at(5.5, 0.5)})
	p3 := place(t, b, model.Entity{Name: "wooden-chest", Position: at(0.5, 5.5)})
	if err := b.Connect(p1, 1, p2, 1, model.WireRed); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := b.Connect(p1, 1, p3, 1, model.WireGreen); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := b.Remove(p1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, n := range []int{p2, p3} {
		e, _ := b.Entity(n)
		if e.Connections.References(p1) {
			t.Fatalf("entity %d still references %d", n, p1)
		}
	}
	if b.Grid().IsOccupied(p1) || b.Grid().Occupants(0, 0) != nil {
		t.Fatalf("removed entity still on grid")
	}
	if !b.Grid().IsOccupied(p2) || !b.Grid().IsOccupied(p3) {
		t.Fatalf("neighbours lost their grid claims")
	}
}

func TestSetRecipe_Unknown(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "assembling-machine-2", Position: at(5.5, 5.5)})
	if err := b.SetRecipe(n, "perpetual-motion"); err == nil {
		t.Fatalf("unknown recipe accepted")
	}
	if err := b.SetRecipe(n, "electronic-circuit"); err != nil {
		t.Fatalf("set recipe: %v", err)
	}
}

func TestOccupancyExclusivity_RandomPlacements(t *testing.T) {
	b := newTestBlueprint(t)
	rng := rand.New(rand.NewSource(7))
	kinds := []string{"transport-belt", "splitter", "pump", "assembling-machine-1", "straight-rail", "gate", "decider-combinator"}
	for i := 0; i < 400; i++ {
		name := kinds[rng.Intn(len(kinds))]
		pos := at(float64(rng.Intn(60))/2, float64(rng.Intn(60))/2)
		b.Place(model.Entity{Name: name, Direction: 2 * rng.Intn(4), Position: pos})
	}
	if b.Current().Entities.Len() == 0 {
		t.Fatalf("nothing placed")
	}

	owners := map[[2]int][]model.Entity{}
	b.Current().Entities.Each(func(e model.Entity) bool {
		size, _ := b.Size(e.Name, e.Direction)
		x0, y0, x1, y1 := model.AreaAt(e.Position, size).Cells()
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				owners[[2]int{x, y}] = append(owners[[2]int{x, y}], e)
			}
		}
		return true
	})
	for cell, es := range owners {
		for i := 0; i < len(es); i++ {
			for j := i + 1; j < len(es); j++ {
				if !b.Catalogs().CanStack(es[i].Name, es[j].Name) {
					t.Fatalf("cell %v shared by %s#%d and %s#%d", cell, es[i].Name, es[i].EntityNumber, es[j].Name, es[j].EntityNumber)
				}
			}
		}
	}
}

func TestLoad_RebuildsGrid(t *testing.T) {
	b := newTestBlueprint(t)
	place(t, b, model.Entity{Name: "transport-belt", Position: at(9.5, 9.5)})
	err := b.Load([]model.Entity{
		{EntityNumber: 4, Name: "transport-belt", Position: at(0.5, 0.5)},
		{EntityNumber: 9, Name: "assembling-machine-1", Position: at(5.5, 5.5)},
	}, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.Grid().Len() != 2 || b.Grid().Occupants(9, 9) != nil {
		t.Fatalf("grid not rebuilt: len=%d", b.Grid().Len())
	}
	if got := b.Store().PeekEntityNumber(); got != 10 {
		t.Fatalf("next number=%d", got)
	}
	if err := b.Load([]model.Entity{{EntityNumber: 1, Name: "warp-drive"}}, 0); err == nil {
		t.Fatalf("unknown kind loaded")
	}
}

func TestLoad_RejectsOverlapAndOutOfBounds(t *testing.T) {
	b := newTestBlueprint(t)
	kept := place(t, b, model.Entity{Name: "transport-belt", Position: at(9.5, 9.5)})
	before := b.Current()

	cases := map[string][]model.Entity{
		"shared cell": {
			{EntityNumber: 1, Name: "transport-belt", Position: at(0.5, 0.5)},
			{EntityNumber: 2, Name: "inserter", Position: at(0.5, 0.5)},
		},
		"out of bounds": {
			{EntityNumber: 3, Name: "inserter", Position: at(-5.5, 90.5)},
		},
		"corner overhang": {
			{EntityNumber: 4, Name: "assembling-machine-1", Position: at(0.5, 0.5)},
		},
	}
	for name, ents := range cases {
		err := b.Load(ents, 10)
		if !errors.Is(err, ErrDoesNotFit) {
			t.Fatalf("%s: err=%v", name, err)
		}
		if b.Current().Seq != before.Seq || !b.Current().Entities.Same(before.Entities) {
			t.Fatalf("%s: version changed", name)
		}
		if !b.Grid().IsOccupied(kept) || b.Grid().Len() != 1 {
			t.Fatalf("%s: grid changed", name)
		}
	}

	// Stackable pairs still load.
	err := b.Load([]model.Entity{
		{EntityNumber: 1, Name: "straight-rail", Position: at(3, 3)},
		{EntityNumber: 2, Name: "gate", Position: at(2.5, 2.5)},
	}, 3)
	if err != nil {
		t.Fatalf("gate over rail: %v", err)
	}
}

func TestBeltShape(t *testing.T) {
	b := newTestBlueprint(t)
	n := place(t, b, model.Entity{Name: "transport-belt", Direction: model.North, Position: at(1.5, 1.5)})
	if got := b.BeltShape(n); got != record.BeltStraight {
		t.Fatalf("lonely belt shape=%d", got)
	}
	place(t, b, model.Entity{Name: "transport-belt", Direction: model.East, Position: at(0.5, 1.5)})
	if got := b.BeltShape(n); got != record.BeltCurveLeft {
		t.Fatalf("fed from the left shape=%d", got)
	}
	place(t, b, model.Entity{Name: "transport-belt", Direction: model.West, Position: at(2.5, 1.5)})
	if got := b.BeltShape(n); got != record.BeltStraight {
		t.Fatalf("fed from both sides shape=%d", got)
	}
}
