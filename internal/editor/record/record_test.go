package record

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/store"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func mustRecord(t *testing.T, cats *catalogs.Catalogs, e model.Entity) Record {
	t.Helper()
	r, err := New(e, cats)
	if err != nil {
		t.Fatalf("record %q: %v", e.Name, err)
	}
	return r
}

func TestNew_UnknownKind(t *testing.T) {
	cats := loadCatalogs(t)
	if _, err := New(model.Entity{EntityNumber: 1, Name: "warp-drive"}, cats); !errors.Is(err, catalogs.ErrUnknownEntity) {
		t.Fatalf("err=%v", err)
	}
}

func TestSize_SwapsWithDirection(t *testing.T) {
	cats := loadCatalogs(t)
	for d := 0; d < 8; d += 2 {
		r := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "pump", Direction: d, Position: model.Position{X: 1, Y: 1}})
		want := model.Size{X: 1, Y: 2}
		if d == model.East || d == model.West {
			want = model.Size{X: 2, Y: 1}
		}
		if got := r.Size(); got != want {
			t.Fatalf("dir %d size=%+v want %+v", d, got, want)
		}
	}
	r := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "pump", Direction: model.East, Position: model.Position{X: 1, Y: 1.5}})
	if tl, br := r.TopLeft(), r.BottomRight(); tl != (model.Position{X: 0, Y: 1}) || br != (model.Position{X: 2, Y: 2}) {
		t.Fatalf("corners tl=%+v br=%+v", tl, br)
	}
}

func TestAcceptedRecipes(t *testing.T) {
	cats := loadCatalogs(t)
	am1 := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "assembling-machine-1"})
	want := []string{"copper-cable", "electronic-circuit", "iron-gear-wheel", "pipe", "speed-module"}
	if got := am1.AcceptedRecipes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("am1 recipes=%v", got)
	}

	am2 := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "assembling-machine-2"})
	got := am2.AcceptedRecipes()
	for _, name := range []string{"advanced-circuit", "engine-unit", "electric-engine-unit", "processing-unit"} {
		if !contains(got, name) {
			t.Fatalf("am2 should accept %s: %v", name, got)
		}
	}
	if contains(got, "rocket-silo") || contains(got, "plastic-bar") {
		t.Fatalf("am2 accepts too much: %v", got)
	}

	am3 := mustRecord(t, cats, model.Entity{EntityNumber: 3, Name: "assembling-machine-3"})
	if !contains(am3.AcceptedRecipes(), "satellite") {
		t.Fatalf("am3 has no ingredient cap")
	}
	chem := mustRecord(t, cats, model.Entity{EntityNumber: 4, Name: "chemical-plant"})
	if got := chem.AcceptedRecipes(); !reflect.DeepEqual(got, []string{"plastic-bar", "sulfuric-acid"}) {
		t.Fatalf("chemical plant recipes=%v", got)
	}
	if got := mustRecord(t, cats, model.Entity{EntityNumber: 5, Name: "inserter"}).AcceptedRecipes(); got != nil {
		t.Fatalf("inserter recipes=%v", got)
	}
}

func TestAcceptedModules(t *testing.T) {
	cats := loadCatalogs(t)
	beacon := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "beacon"})
	if got := beacon.AcceptedModules(); !reflect.DeepEqual(got, []string{"effectivity-module", "speed-module", "speed-module-2"}) {
		t.Fatalf("beacon modules=%v", got)
	}
	idle := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "assembling-machine-3"})
	if got := idle.AcceptedModules(); len(got) != 6 {
		t.Fatalf("am3 without recipe modules=%v", got)
	}
	silo := mustRecord(t, cats, model.Entity{EntityNumber: 3, Name: "assembling-machine-3", Recipe: "rocket-silo"})
	for _, m := range silo.AcceptedModules() {
		if catalogs.IsProductivityModule(m) {
			t.Fatalf("productivity accepted for rocket-silo: %v", silo.AcceptedModules())
		}
	}
	if got := mustRecord(t, cats, model.Entity{EntityNumber: 4, Name: "assembling-machine-1"}).AcceptedModules(); got != nil {
		t.Fatalf("am1 modules=%v", got)
	}
}

func TestSetRecipe_DropsProductivityModules(t *testing.T) {
	cats := loadCatalogs(t)
	r := mustRecord(t, cats, model.Entity{
		EntityNumber: 1,
		Name:         "assembling-machine-3",
		Recipe:       "electronic-circuit",
		Items:        map[string]int{"productivity-module": 2, "speed-module": 1},
	})
	tx := r.SetRecipe("rocket-silo")
	e := tx.Deltas[0].Entity
	if e.Recipe != "rocket-silo" || !reflect.DeepEqual(e.Items, map[string]int{"speed-module": 1}) {
		t.Fatalf("after set recipe: recipe=%q items=%v", e.Recipe, e.Items)
	}
	if r.Entity().Items["productivity-module"] != 2 {
		t.Fatalf("snapshot mutated")
	}

	only := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "assembling-machine-3", Items: map[string]int{"productivity-module": 1}})
	if e := only.SetRecipe("satellite").Deltas[0].Entity; e.Items != nil {
		t.Fatalf("items should be cleared, got %v", e.Items)
	}
	if e := only.SetRecipe("pipe").Deltas[0].Entity; e.Items["productivity-module"] != 1 {
		t.Fatalf("allowed recipe stripped modules: %v", e.Items)
	}
}

func TestSetModules_CollapsesRepeats(t *testing.T) {
	cats := loadCatalogs(t)
	r := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "assembling-machine-3"})
	e := r.SetModules([]string{"speed-module", "productivity-module", "speed-module"}).Deltas[0].Entity
	if !reflect.DeepEqual(e.Items, map[string]int{"speed-module": 2, "productivity-module": 1}) {
		t.Fatalf("items=%v", e.Items)
	}
	list := mustRecord(t, cats, e).ModulesList()
	if !reflect.DeepEqual(list, []string{"productivity-module", "speed-module", "speed-module"}) {
		t.Fatalf("list=%v", list)
	}
	if e := r.SetModules(nil).Deltas[0].Entity; e.Items != nil {
		t.Fatalf("empty list should clear items")
	}
}

func TestPlanRotation_TruthTable(t *testing.T) {
	cats := loadCatalogs(t)
	none := model.Position{}

	am2 := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "assembling-machine-2"})
	if _, ok := am2.PlanRotation(true, false, none, true); ok {
		t.Fatalf("am2 without fluid recipe rotated")
	}
	fluid := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "assembling-machine-2", Recipe: "electric-engine-unit"})
	if p, ok := fluid.PlanRotation(true, false, none, true); !ok || p.Direction != model.East {
		t.Fatalf("fluid am2 plan=%+v ok=%v", p, ok)
	}

	belt := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "transport-belt"})
	if _, ok := belt.PlanRotation(true, true, none, true); ok {
		t.Fatalf("stationary rotation with shared cell allowed")
	}
	if p, ok := belt.PlanRotation(false, true, none, true); !ok || p.Direction != model.East || p.PushToHistory {
		t.Fatalf("moving belt plan=%+v ok=%v", p, ok)
	}
	if p, _ := belt.PlanRotation(true, false, none, true); p.Direction != model.East || !p.PushToHistory {
		t.Fatalf("stationary belt plan=%+v", p)
	}

	if _, ok := mustRecord(t, cats, model.Entity{EntityNumber: 3, Name: "pipe"}).PlanRotation(true, false, none, true); ok {
		t.Fatalf("pipe has no rotations")
	}

	ug := mustRecord(t, cats, model.Entity{EntityNumber: 4, Name: "underground-belt", Type: model.DirectionInput})
	p, ok := ug.PlanRotation(true, false, none, true)
	if !ok || p.Direction != model.South || p.DirectionType != model.DirectionOutput {
		t.Fatalf("stationary underground plan=%+v", p)
	}
	p, _ = ug.PlanRotation(false, false, none, true)
	if p.Direction != model.East || p.DirectionType != model.DirectionInput {
		t.Fatalf("moving underground plan=%+v", p)
	}

	splitter := mustRecord(t, cats, model.Entity{EntityNumber: 5, Name: "splitter", Position: model.Position{X: 3, Y: 2.5}})
	p, _ = splitter.PlanRotation(true, false, model.Position{X: 0.5, Y: 0.5}, true)
	if p.Direction != model.South || p.Position != (model.Position{X: 3, Y: 2.5}) {
		t.Fatalf("stationary splitter plan=%+v", p)
	}
	p, _ = splitter.PlanRotation(false, false, model.Position{X: 0.5, Y: -0.5}, true)
	if p.Direction != model.East || p.Position != (model.Position{X: 3.5, Y: 2}) {
		t.Fatalf("moving splitter plan=%+v", p)
	}

	rail := mustRecord(t, cats, model.Entity{EntityNumber: 6, Name: "straight-rail", Direction: 7})
	if p, _ := rail.PlanRotation(true, false, none, true); p.Direction != 0 {
		t.Fatalf("rail should wrap to 0, got %d", p.Direction)
	}
}

func TestPlanRotation_NextEqualsCurrentIsNoop(t *testing.T) {
	cats, err := catalogs.New([]catalogs.EntityDef{{
		Name:              "half-turn",
		Size:              catalogs.Size{X: 2, Y: 1},
		PossibleRotations: []int{0, 4},
	}}, nil, nil, nil)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	r := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "half-turn"})
	if _, ok := r.PlanRotation(true, false, model.Position{}, true); ok {
		t.Fatalf("rotation to the same direction should be refused")
	}
	if p, ok := r.PlanRotation(false, false, model.Position{}, true); !ok || p.Direction != 4 {
		t.Fatalf("moving plan=%+v ok=%v", p, ok)
	}
}

func TestWireConnectionPoint(t *testing.T) {
	cats := loadCatalogs(t)

	pole := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "small-electric-pole"})
	def := pole.Prototype()
	if got, err := pole.WireConnectionPoint(model.WireRed, 1, 0); err != nil || got != def.ConnectionPoints[0].Wire.Red {
		t.Fatalf("pole red=%+v err=%v", got, err)
	}

	comb := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "decider-combinator", Direction: model.East})
	def = comb.Prototype()
	in, _ := comb.WireConnectionPoint(model.WireGreen, 1, 0)
	out, _ := comb.WireConnectionPoint(model.WireGreen, 2, 0)
	if in != def.InputConnectionPoints[1].Wire.Green || out != def.OutputConnectionPoints[1].Wire.Green {
		t.Fatalf("combinator in=%+v out=%+v", in, out)
	}

	chest := mustRecord(t, cats, model.Entity{EntityNumber: 3, Name: "wooden-chest"})
	if got, _ := chest.WireConnectionPoint(model.WireRed, 1, 0); got != chest.Prototype().CircuitWireConnectionPoint.Wire.Red {
		t.Fatalf("chest red=%+v", got)
	}

	belt := mustRecord(t, cats, model.Entity{EntityNumber: 4, Name: "transport-belt", Direction: model.South})
	def = belt.Prototype()
	if got, _ := belt.WireConnectionPoint(model.WireRed, 1, BeltCurveRight); got != def.CircuitWireConnectionPoints[2*4+2].Wire.Red {
		t.Fatalf("belt red=%+v", got)
	}

	if _, err := belt.WireConnectionPoint("blue", 1, 0); err == nil {
		t.Fatalf("unknown color accepted")
	}
	if _, err := mustRecord(t, cats, model.Entity{EntityNumber: 5, Name: "pipe"}).WireConnectionPoint(model.WireRed, 1, 0); err == nil {
		t.Fatalf("pipe has no wire points")
	}
}

func TestRemove_ClearsWireReferences(t *testing.T) {
	cats := loadCatalogs(t)
	a := model.Entity{EntityNumber: 1, Name: "small-electric-pole"}
	b := model.Entity{EntityNumber: 2, Name: "small-electric-pole"}
	c := model.Entity{EntityNumber: 3, Name: "wooden-chest"}

	s := store.New(0)
	if _, err := s.Commit(store.NewTransaction("add", store.TagAdd, store.Put(a), store.Put(b), store.Put(c))); err != nil {
		t.Fatalf("add: %v", err)
	}
	ra := mustRecord(t, cats, a)
	tx, err := ra.Connect(mustRecord(t, cats, b), 1, 1, model.WireRed)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.Commit(tx)
	cur, _ := s.Entity(1)
	rc, _ := s.Entity(3)
	tx, _ = mustRecord(t, cats, cur).Connect(mustRecord(t, cats, rc), 1, 1, model.WireGreen)
	s.Commit(tx)

	cur, _ = s.Entity(1)
	if got := mustRecord(t, cats, cur).ConnectedEntities(); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("connected=%v", got)
	}

	rm := mustRecord(t, cats, cur).Remove(s.Current().Entities)
	if !reflect.DeepEqual(rm.Affected(), []int{2, 3, 1}) {
		t.Fatalf("affected=%v", rm.Affected())
	}
	if _, err := s.Commit(rm); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, n := range []int{2, 3} {
		e, _ := s.Entity(n)
		if e.Connections.References(1) || e.Connections != nil {
			t.Fatalf("entity %d still linked: %+v", n, e.Connections)
		}
	}
	if s.Current().Entities.Has(1) {
		t.Fatalf("entity 1 not removed")
	}
}

func TestRemove_ClearsOneSidedLinks(t *testing.T) {
	cats := loadCatalogs(t)
	a := model.Entity{EntityNumber: 1, Name: "small-electric-pole"}
	b := model.Entity{EntityNumber: 2, Name: "small-electric-pole"}
	b.Connections = b.Connections.With("1", model.WireRed, model.ConnectionRef{EntityID: 1})

	s := store.New(0)
	if _, err := s.Reset(model.NewCollection(a, b), 3); err != nil {
		t.Fatalf("reset: %v", err)
	}
	rm := mustRecord(t, cats, a).Remove(s.Current().Entities)
	if !reflect.DeepEqual(rm.Affected(), []int{2, 1}) {
		t.Fatalf("affected=%v", rm.Affected())
	}
	if _, err := s.Commit(rm); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if e, _ := s.Entity(2); e.Connections.References(1) {
		t.Fatalf("entity 2 still linked: %+v", e.Connections)
	}
}

func TestPasteData(t *testing.T) {
	cats := loadCatalogs(t)
	prod := []string{"productivity-module", "productivity-module", "speed-module", "effectivity-module"}

	am1 := mustRecord(t, cats, model.Entity{EntityNumber: 1, Name: "assembling-machine-1"})
	tx, ok := am1.PasteData("electronic-circuit", prod)
	if !ok {
		t.Fatalf("paste on am1 refused")
	}
	if e := tx.Deltas[0].Entity; e.Recipe != "electronic-circuit" || e.Items != nil {
		t.Fatalf("am1 after paste: %+v", e)
	}

	am2 := mustRecord(t, cats, model.Entity{EntityNumber: 2, Name: "assembling-machine-2", Recipe: "pipe"})
	tx, _ = am2.PasteData("rocket-silo", prod)
	e := tx.Deltas[0].Entity
	if e.Recipe != "" || !reflect.DeepEqual(e.Items, map[string]int{"productivity-module": 2}) {
		t.Fatalf("am2 after paste: recipe=%q items=%v", e.Recipe, e.Items)
	}

	am3 := mustRecord(t, cats, model.Entity{EntityNumber: 3, Name: "assembling-machine-3"})
	tx, _ = am3.PasteData("rocket-silo", prod)
	e = tx.Deltas[0].Entity
	if e.Recipe != "rocket-silo" || !reflect.DeepEqual(e.Items, map[string]int{"speed-module": 1, "effectivity-module": 1}) {
		t.Fatalf("am3 after paste: recipe=%q items=%v", e.Recipe, e.Items)
	}

	same := mustRecord(t, cats, model.Entity{EntityNumber: 4, Name: "assembling-machine-1", Recipe: "pipe"})
	if _, ok := same.PasteData("pipe", nil); ok {
		t.Fatalf("no-op paste reported a change")
	}
}
