package mirror

import (
	"path/filepath"
	"reflect"
	"testing"

	"beltline.dev/internal/editor/blueprint"
	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
)

type partsRenderer struct{ n int }

func (r partsRenderer) Parts(e model.Entity, moving, ignoreConnections bool) []Part {
	out := make([]Part, r.n)
	for i := range out {
		out[i].Sprite = e.Name
	}
	return out
}

type gestureLog struct{ calls []string }

func (g *gestureLog) PointerDown(n int, button Button, mods Modifiers, at Pixel) {
	g.calls = append(g.calls, "down")
}
func (g *gestureLog) PointerOver(n int) { g.calls = append(g.calls, "over") }
func (g *gestureLog) PointerOut(n int)  { g.calls = append(g.calls, "out") }

func setup(t *testing.T, parts int) (*blueprint.Blueprint, *Registry) {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	bp := blueprint.New(cats, 40, 40, 0)
	reg := NewRegistry(bp, cats, partsRenderer{n: parts}, 32)
	bp.Store().Subscribe(reg)
	return bp, reg
}

func TestZIndex(t *testing.T) {
	cases := []struct {
		name, kind string
		i, want    int
	}{
		{"straight-rail", "straight-rail", 0, -10},
		{"straight-rail", "straight-rail", 3, -9},
		{"curved-rail", "curved-rail", 5, -8},
		{"fast-transport-belt", "transport-belt", 0, -7},
		{"transport-belt", "transport-belt", 2, -6},
		{"heat-pipe", "heat-pipe", 1, -6},
		{"inserter", "inserter", 0, 0},
	}
	for _, c := range cases {
		if got := ZIndex(c.name, c.kind, c.i); got != c.want {
			t.Fatalf("ZIndex(%s,%d)=%d want %d", c.name, c.i, got, c.want)
		}
	}
}

func TestRegistry_FollowsStore(t *testing.T) {
	bp, reg := setup(t, 5)
	n, _, err := bp.Place(model.Entity{Name: "straight-rail", Position: model.Position{X: 4, Y: 4}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	m, ok := reg.Get(n)
	if !ok {
		t.Fatalf("no mirror after placement")
	}
	var z []int
	for _, p := range m.Parts() {
		z = append(z, p.ZIndex)
	}
	if !reflect.DeepEqual(z, []int{-10, -10, -9, -9, -8}) {
		t.Fatalf("z=%v", z)
	}
	if m.Position() != (Pixel{X: 128, Y: 128}) {
		t.Fatalf("pos=%+v", m.Position())
	}
	if m.HitArea() != (Rect{X: -32, Y: -32, Width: 64, Height: 64}) {
		t.Fatalf("hit=%+v", m.HitArea())
	}

	redraws := m.Redraws()
	if ok, _ := bp.Move(n, model.Position{X: 8, Y: 8}); !ok {
		t.Fatalf("move refused")
	}
	if m.Redraws() != redraws+1 || m.Position() != (Pixel{X: 256, Y: 256}) {
		t.Fatalf("mirror not redrawn after move: redraws=%d pos=%+v", m.Redraws(), m.Position())
	}

	destroyed := 0
	reg.OnDestroy = func(int) { destroyed++ }
	if err := bp.Remove(n); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := reg.Get(n); ok || destroyed != 1 {
		t.Fatalf("mirror survived removal (destroyed=%d)", destroyed)
	}
	if reg.Destroy(n) || destroyed != 1 {
		t.Fatalf("second destroy should be a no-op")
	}
}

func TestRegistry_CreateOnce(t *testing.T) {
	bp, reg := setup(t, 1)
	n, _, _ := bp.Place(model.Entity{Name: "inserter", Position: model.Position{X: 0.5, Y: 0.5}})
	if _, ok := reg.Create(n); ok {
		t.Fatalf("second create succeeded")
	}
	if _, ok := reg.Create(42); ok {
		t.Fatalf("create for a missing entity succeeded")
	}
	if reg.Len() != 1 {
		t.Fatalf("len=%d", reg.Len())
	}
}

func TestFloatingMirrorKeepsPointerPosition(t *testing.T) {
	bp, reg := setup(t, 2)
	n, _, _ := bp.Place(model.Entity{Name: "splitter", Position: model.Position{X: 5, Y: 5.5}})
	m, _ := reg.Get(n)
	m.SetFloating(true)
	m.SetPosition(Pixel{X: 300, Y: 300})
	bp.PickUp(n)
	if ok, _ := bp.Rotate(n, false, model.Position{X: 0.5, Y: 0.5}, 0); !ok {
		t.Fatalf("rotate refused")
	}
	if m.Position() != (Pixel{X: 300, Y: 300}) {
		t.Fatalf("floating mirror moved by commit: %+v", m.Position())
	}
	for _, p := range m.Parts() {
		if !p.Moving {
			t.Fatalf("floating parts not marked moving")
		}
	}
	if m.HitArea().Width != 32 || m.HitArea().Height != 64 {
		t.Fatalf("hit area not rotated: %+v", m.HitArea())
	}
}

func TestMirrorForwardsGestures(t *testing.T) {
	bp, reg := setup(t, 1)
	g := &gestureLog{}
	reg.SetGestures(g)
	n, _, _ := bp.Place(model.Entity{Name: "inserter", Position: model.Position{X: 0.5, Y: 0.5}})
	m, _ := reg.Get(n)
	m.PointerOver()
	m.PointerDown(ButtonLeft, Modifiers{}, Pixel{X: 16, Y: 16})
	m.PointerOut()
	if !reflect.DeepEqual(g.calls, []string{"over", "down", "out"}) {
		t.Fatalf("calls=%v", g.calls)
	}
	if !m.HitArea().Contains(-16, 15) || m.HitArea().Contains(16, 0) {
		t.Fatalf("hit area=%+v", m.HitArea())
	}
}
