package record

import (
	"fmt"
	"sort"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
)

// Record is a read-only view over one entity snapshot plus its prototype.
// It never mutates the snapshot; intents return store transactions instead.
type Record struct {
	e   model.Entity
	def catalogs.EntityDef
	cat *catalogs.Catalogs
}

// New resolves the prototype of e. A catalog miss is a data error and is
// returned as catalogs.ErrUnknownEntity.
func New(e model.Entity, cat *catalogs.Catalogs) (Record, error) {
	def, err := cat.Entity(e.Name)
	if err != nil {
		return Record{}, err
	}
	return Record{e: e, def: def, cat: cat}, nil
}

func (r Record) Entity() model.Entity            { return r.e }
func (r Record) Prototype() catalogs.EntityDef   { return r.def }
func (r Record) Catalogs() *catalogs.Catalogs    { return r.cat }
func (r Record) EntityNumber() int               { return r.e.EntityNumber }
func (r Record) Name() string                    { return r.e.Name }
func (r Record) Kind() string                    { return r.def.Type }
func (r Record) Position() model.Position        { return r.e.Position }
func (r Record) Direction() int                  { return r.e.Direction }
func (r Record) DirectionType() string           { return r.e.Type }
func (r Record) Recipe() string                  { return r.e.Recipe }
func (r Record) InserterFilters() []model.Filter { return r.e.Filters }
func (r Record) SplitterFilter() string          { return r.e.Filter }
func (r Record) SplitterInputPriority() string   { return r.e.InputPriority }
func (r Record) SplitterOutputPriority() string  { return r.e.OutputPriority }
func (r Record) TrainStopColor() *model.Color    { return r.e.Color }
func (r Record) LogisticChestFilters() []model.RequestFilter {
	return r.e.RequestFilters
}

// Size is the footprint after rotation.
func (r Record) Size() model.Size {
	return model.RotatedSize(model.Size{X: r.def.Size.X, Y: r.def.Size.Y}, r.e.Direction)
}

func (r Record) Area() model.Area { return model.AreaAt(r.e.Position, r.Size()) }

// AreaAt is the footprint the entity would have centred at pos.
func (r Record) AreaAt(pos model.Position) model.Area { return model.AreaAt(pos, r.Size()) }

func (r Record) TopLeft() model.Position {
	s := r.Size()
	return model.Position{X: r.e.Position.X - float64(s.X)/2, Y: r.e.Position.Y - float64(s.Y)/2}
}

func (r Record) TopRight() model.Position {
	s := r.Size()
	return model.Position{X: r.e.Position.X + float64(s.X)/2, Y: r.e.Position.Y - float64(s.Y)/2}
}

func (r Record) BottomLeft() model.Position {
	s := r.Size()
	return model.Position{X: r.e.Position.X - float64(s.X)/2, Y: r.e.Position.Y + float64(s.Y)/2}
}

func (r Record) BottomRight() model.Position {
	s := r.Size()
	return model.Position{X: r.e.Position.X + float64(s.X)/2, Y: r.e.Position.Y + float64(s.Y)/2}
}

// Modules returns a copy of the module counts, or nil.
func (r Record) Modules() map[string]int {
	if len(r.e.Items) == 0 {
		return nil
	}
	out := make(map[string]int, len(r.e.Items))
	for k, v := range r.e.Items {
		out[k] = v
	}
	return out
}

// ModulesList expands module counts into one entry per module, by name.
func (r Record) ModulesList() []string {
	if len(r.e.Items) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.e.Items))
	for k := range r.e.Items {
		names = append(names, k)
	}
	sort.Strings(names)
	var out []string
	for _, k := range names {
		for i := 0; i < r.e.Items[k]; i++ {
			out = append(out, k)
		}
	}
	return out
}

func (r Record) ConstantCombinatorFilters() []model.ConstantFilter {
	if r.e.ControlBehavior == nil {
		return nil
	}
	return r.e.ControlBehavior.Filters
}

func (r Record) DeciderConditions() *model.DeciderConditions {
	if r.e.ControlBehavior == nil {
		return nil
	}
	return r.e.ControlBehavior.DeciderConditions
}

func (r Record) ArithmeticConditions() *model.ArithmeticConditions {
	if r.e.ControlBehavior == nil {
		return nil
	}
	return r.e.ControlBehavior.ArithmeticConditions
}

// Operator is the comparator of a decider or the operation of an arithmetic
// combinator.
func (r Record) Operator() string {
	switch r.e.Name {
	case "decider-combinator":
		if c := r.DeciderConditions(); c != nil {
			return c.Comparator
		}
	case "arithmetic-combinator":
		if c := r.ArithmeticConditions(); c != nil {
			return c.Operation
		}
	}
	return ""
}

func (r Record) HasConnections() bool           { return r.e.Connections != nil }
func (r Record) Connections() model.Connections { return r.e.Connections.Clone() }
func (r Record) ConnectedEntities() []int       { return r.e.Connections.EntityIDs() }

func (r Record) ModuleSlots() int {
	if r.def.ModuleSpecification == nil {
		return 0
	}
	return r.def.ModuleSpecification.ModuleSlots
}

// AcceptedRecipes lists recipes the entity can craft, by name. Entities
// without crafting categories accept none.
func (r Record) AcceptedRecipes() []string {
	cc := r.def.CraftingCategories
	if len(cc) == 0 {
		return nil
	}
	var out []string
	for _, name := range r.cat.Recipes.Names {
		rd := r.cat.Recipes.ByName[name]
		if !(contains(cc, rd.Category) || (rd.Category == "" && contains(cc, "crafting"))) {
			continue
		}
		if r.def.IngredientCount > 0 && len(rd.Ingredients) > r.def.IngredientCount {
			continue
		}
		out = append(out, name)
	}
	return out
}

// AcceptedModules lists module items the entity accepts. Productivity
// modules are left out for beacons and for recipes outside their limitation.
func (r Record) AcceptedModules() []string {
	if r.def.ModuleSpecification == nil {
		return nil
	}
	omitProductivity := r.def.Type == "beacon" ||
		(r.e.Recipe != "" && !r.cat.ProductivityAllowed(r.e.Recipe))
	var out []string
	for _, name := range r.cat.Items.Names {
		it := r.cat.Items.ByName[name]
		if it.Type != "module" {
			continue
		}
		if omitProductivity && catalogs.IsProductivityModule(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r Record) AssemblerCraftsWithFluid() bool {
	if r.e.Recipe == "" {
		return false
	}
	rd, ok := r.cat.Recipe(r.e.Recipe)
	return ok && rd.Category == "crafting-with-fluid" && contains(r.def.CraftingCategories, "crafting-with-fluid")
}

// AssemblerPipeDirection is "input" when the recipe consumes a fluid,
// "output" when it only produces one, and empty otherwise.
func (r Record) AssemblerPipeDirection() string {
	if r.e.Recipe == "" {
		return ""
	}
	rd, ok := r.cat.Recipe(r.e.Recipe)
	if !ok {
		return ""
	}
	for _, in := range rd.Ingredients {
		if in.Type == "fluid" {
			return model.DirectionInput
		}
	}
	for _, out := range rd.Results {
		if out.Type == "fluid" {
			return model.DirectionOutput
		}
	}
	return ""
}

// ChemicalPlantDontConnectOutput reports whether the current recipe yields an
// item first, so the fluid output box stays unconnected.
func (r Record) ChemicalPlantDontConnectOutput() bool {
	if r.e.Recipe == "" {
		return false
	}
	rd, ok := r.cat.Recipe(r.e.Recipe)
	if !ok {
		return false
	}
	if rd.Result != "" {
		return true
	}
	return len(rd.Results) > 0 && rd.Results[0].Type != "fluid"
}

// RotationPlan is the outcome of a permitted rotation.
type RotationPlan struct {
	EntityNumber  int
	Direction     int
	DirectionType string
	Position      model.Position
	PushToHistory bool
}

// PlanRotation decides whether and how the entity rotates. sharesCell is the
// grid's answer for the entity's own area. offset re-centres a non-square
// footprint while it is being dragged.
func (r Record) PlanRotation(notMoving, sharesCell bool, offset model.Position, pushToHistory bool) (RotationPlan, bool) {
	if r.def.FluidRotationOnly && !r.AssemblerCraftsWithFluid() {
		return RotationPlan{}, false
	}
	if notMoving && sharesCell {
		return RotationPlan{}, false
	}
	pr := r.def.PossibleRotations
	if len(pr) == 0 {
		return RotationPlan{}, false
	}
	step := 1
	if notMoving && (!r.Size().Square() || r.def.Type == "underground-belt") {
		step = 2
	}
	idx := indexOf(pr, r.e.Direction)
	next := pr[(idx+step)%len(pr)]
	if next == r.e.Direction {
		return RotationPlan{}, false
	}

	plan := RotationPlan{
		EntityNumber:  r.e.EntityNumber,
		Direction:     next,
		DirectionType: r.e.Type,
		Position:      r.e.Position,
		PushToHistory: notMoving && pushToHistory,
	}
	if notMoving && r.def.Type == "underground-belt" {
		plan.DirectionType = flipRole(r.e.Type)
	}
	if !notMoving && !r.Size().Square() {
		plan.Position = r.e.Position.Add(offset)
	}
	return plan, true
}

// Belt shapes used to pick a transport belt's wire connection point.
const (
	BeltStraight = iota
	BeltCurveLeft
	BeltCurveRight
)

// WireConnectionPoint resolves where a wire of the given color attaches.
// side 1 is the input side of combinators. beltShape is only consulted for
// transport belts.
func (r Record) WireConnectionPoint(color string, side, beltShape int) (catalogs.Vec, error) {
	d := r.def
	quarter := model.NormalizeDirection(r.e.Direction) / 2
	switch {
	case len(d.ConnectionPoints) > 0:
		return pick(d.ConnectionPoints, quarter, color)
	case len(d.InputConnectionPoints) > 0:
		if side == 1 {
			return pick(d.InputConnectionPoints, quarter, color)
		}
		return pick(d.OutputConnectionPoints, quarter, color)
	case d.CircuitWireConnectionPoint != nil:
		return wireColor(d.CircuitWireConnectionPoint.Wire, color)
	case len(d.CircuitWireConnectionPoints) == 0:
		return catalogs.Vec{}, fmt.Errorf("%s: no wire connection points", r.e.Name)
	case d.Type == "transport-belt":
		return pick(d.CircuitWireConnectionPoints, beltShape*4+quarter, color)
	case len(d.CircuitWireConnectionPoints) == 8:
		return pick(d.CircuitWireConnectionPoints, model.NormalizeDirection(r.e.Direction), color)
	default:
		return pick(d.CircuitWireConnectionPoints, quarter, color)
	}
}

func pick(points []catalogs.WirePoint, i int, color string) (catalogs.Vec, error) {
	if i < 0 || i >= len(points) {
		return catalogs.Vec{}, fmt.Errorf("wire connection index %d out of range (%d points)", i, len(points))
	}
	return wireColor(points[i].Wire, color)
}

func wireColor(w catalogs.Wire, color string) (catalogs.Vec, error) {
	switch color {
	case model.WireRed:
		return w.Red, nil
	case model.WireGreen:
		return w.Green, nil
	default:
		return catalogs.Vec{}, fmt.Errorf("unknown wire color %q", color)
	}
}

func flipRole(t string) string {
	if t == model.DirectionInput {
		return model.DirectionOutput
	}
	return model.DirectionInput
}

func indexOf(list []int, v int) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
