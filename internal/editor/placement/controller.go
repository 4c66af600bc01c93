package placement

import (
	"fmt"

	"beltline.dev/internal/editor/blueprint"
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/record"
)

// Mode is the global interaction state.
type Mode int

const (
	Idle Mode = iota
	Moving
	Painting
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Painting:
		return "painting"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Metrics counts gestures and whether they took effect.
type Metrics interface {
	Gesture(name string, accepted bool)
}

// Clipboard holds the recipe and modules copied from an entity.
type Clipboard struct {
	Recipe  string
	Modules []string
}

type Options struct {
	Overlay    mirror.Overlay
	Wires      mirror.Wires
	Editor     mirror.Editor
	Metrics    Metrics
	TileSize   float64
	RailOffset model.Position
}

// Controller is the placement state machine. It owns the interaction mode
// and is the only writer of the blueprint during a gesture.
type Controller struct {
	bp      *blueprint.Blueprint
	reg     *mirror.Registry
	overlay mirror.Overlay
	wires   mirror.Wires
	editor  mirror.Editor
	metrics Metrics
	snap    Snapper

	mode      Mode
	moving    int
	hover     int
	editing   int
	cursor    [2]int
	clipboard Clipboard
}

func New(bp *blueprint.Blueprint, reg *mirror.Registry, opts Options) *Controller {
	c := &Controller{
		bp:      bp,
		reg:     reg,
		overlay: opts.Overlay,
		wires:   opts.Wires,
		editor:  opts.Editor,
		metrics: opts.Metrics,
		snap:    Snapper{Tile: opts.TileSize, RailOffset: opts.RailOffset},
	}
	if c.snap.Tile <= 0 {
		c.snap.Tile = reg.TileSize()
	}
	if c.overlay == nil {
		c.overlay = nopOverlay{}
	}
	if c.wires == nil {
		c.wires = nopWires{}
	}
	if c.editor == nil {
		c.editor = nopEditor{}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	reg.SetGestures(c)
	reg.OnDestroy = c.forget
	return c
}

func (c *Controller) Mode() Mode                { return c.mode }
func (c *Controller) MovingEntity() int         { return c.moving }
func (c *Controller) Hovered() int              { return c.hover }
func (c *Controller) Clipboard() Clipboard      { return c.clipboard }
func (c *Controller) Snapper() Snapper          { return c.snap }
func (c *Controller) SetClipboard(cb Clipboard) { c.clipboard = cb }

// PointerDown dispatches a button press on entity n.
func (c *Controller) PointerDown(n int, button mirror.Button, mods mirror.Modifiers, at mirror.Pixel) {
	switch button {
	case mirror.ButtonLeft:
		if c.mode == Idle && !mods.Shift {
			c.editing = n
			c.editor.Open(n)
			c.metrics.Gesture("open", true)
		}
		if mods.Shift {
			c.PasteData(n)
		}
	case mirror.ButtonMiddle:
		if n != c.moving && c.mode == Idle {
			c.pickUp(n, at)
			return
		}
		if n == c.moving && c.mode == Moving {
			c.Drop()
		}
	case mirror.ButtonRight:
		if c.mode != Idle {
			return
		}
		if mods.Shift {
			c.CopyData(n)
			return
		}
		c.Delete(n)
	}
}

func (c *Controller) pickUp(n int, at mirror.Pixel) bool {
	m, ok := c.reg.Get(n)
	if !ok {
		c.metrics.Gesture("pickup", false)
		return false
	}
	r, err := c.bp.Record(n)
	if err != nil {
		c.metrics.Gesture("pickup", false)
		return false
	}
	c.bp.PickUp(n)
	m.SetFloating(true)
	m.Redraw(true)
	c.redrawSurroundingEntities(r)
	c.mode = Moving
	c.moving = n

	pos := c.snap.Footprint(at, r.Size())
	if pos != m.Position() {
		m.SetPosition(pos)
		c.updateVisuals(n)
	}
	c.cursor = c.snap.Cell(at)
	c.metrics.Gesture("pickup", true)
	return true
}

// PointerMove drags the floating entity. Visuals update only when the
// pointer crosses into another half-tile cell.
func (c *Controller) PointerMove(at mirror.Pixel) {
	if c.mode != Moving {
		return
	}
	cell := c.snap.Cell(at)
	if cell == c.cursor {
		return
	}
	m, ok := c.reg.Get(c.moving)
	if !ok {
		return
	}
	r, err := c.bp.Record(c.moving)
	if err != nil {
		return
	}
	if railLike(r.Name()) {
		m.SetPosition(c.snap.Rail(at))
	} else {
		m.SetPosition(c.snap.Footprint(at, r.Size()))
	}
	c.updateVisuals(c.moving)
	c.cursor = cell
}

// Drop commits the dragged entity at its current mirror position. On any
// rejection the controller stays in Moving and nothing changes.
func (c *Controller) Drop() bool {
	if c.mode != Moving {
		return false
	}
	n := c.moving
	m, ok := c.reg.Get(n)
	if !ok {
		return false
	}
	r, err := c.bp.Record(n)
	if err != nil {
		return false
	}
	pos := c.snap.GridPosition(m.Position())
	if !c.bp.Grid().InBounds(r.AreaAt(pos)) {
		c.overlay.SetBuildable(false)
		c.metrics.Gesture("drop", false)
		return false
	}
	moved, err := c.bp.Move(n, pos)
	if err != nil || !moved {
		c.overlay.SetBuildable(false)
		c.metrics.Gesture("drop", false)
		return false
	}
	c.mode = Idle
	c.moving = 0
	m.SetFloating(false)
	m.SetPosition(c.reg.ToPixel(pos))
	m.Redraw(false)
	if r, err := c.bp.Record(n); err == nil {
		c.redrawSurroundingEntities(r)
	}
	c.metrics.Gesture("drop", true)
	return true
}

// Rotate turns the dragged entity, or the hovered one when idle. Idle
// underground belts take their partner along in the same operation.
func (c *Controller) Rotate() bool {
	var n int
	switch c.mode {
	case Moving:
		n = c.moving
	case Idle:
		n = c.hover
	default:
		return false
	}
	m, ok := c.reg.Get(n)
	if n == 0 || !ok {
		return false
	}
	r, err := c.bp.Record(n)
	if err != nil {
		return false
	}
	notMoving := c.mode == Idle
	offset := c.snap.RotationOffset(m.Position(), c.cursor)

	partner := 0
	if notMoving && r.Kind() == "underground-belt" {
		partner = c.findPartner(r)
	}
	ok, err = c.bp.Rotate(n, notMoving, offset, partner)
	if err != nil || !ok {
		c.metrics.Gesture("rotate", false)
		return false
	}

	r, _ = c.bp.Record(n)
	size := r.Size()
	if c.mode == Moving && !size.Square() {
		p := m.Position()
		p.X += offset.X * c.snap.Tile
		p.Y += offset.Y * c.snap.Tile
		m.SetPosition(c.snap.Footprint(p, size))
		c.overlay.UpdateCursorBoxPosition(m.Position())
	}
	m.Redraw(c.mode == Moving)
	if notMoving {
		c.redrawSurroundingEntities(r)
	}
	c.overlay.UpdateCursorBoxSize(size.X, size.Y)
	c.updateUndergroundLines(n)
	if c.mode == Moving {
		c.checkBuildable(n)
	}
	c.wires.Update(n)
	c.metrics.Gesture("rotate", true)
	return true
}

// findPartner locates the paired underground belt. A partner with the same
// role means the pair is broken and is ignored.
func (c *Controller) findPartner(r record.Record) int {
	search := r.Direction()
	if r.DirectionType() != model.DirectionInput {
		search = model.Opposite(search)
	}
	other, ok := c.bp.Grid().FindEntityWithSameNameAndDirection(
		r.Name(), r.Direction(), r.Position(), search, r.Prototype().MaxDistance)
	if !ok {
		return 0
	}
	oe, ok := c.bp.Entity(other)
	if !ok || oe.Type == r.DirectionType() {
		return 0
	}
	return other
}

// Delete removes n together with its wires and mirror. It is refused unless
// the controller is idle.
func (c *Controller) Delete(n int) bool {
	if n == 0 || c.mode != Idle {
		return false
	}
	r, err := c.bp.Record(n)
	if err != nil {
		c.metrics.Gesture("delete", false)
		return false
	}
	c.wires.Remove(n)
	c.bp.PickUp(n)
	c.redrawSurroundingEntities(r)
	if err := c.bp.Remove(n); err != nil {
		c.bp.PutBack(n)
		c.metrics.Gesture("delete", false)
		return false
	}
	c.hover = 0
	c.metrics.Gesture("delete", true)
	return true
}

// PlaceEntity adds a new entity for the paint and paste flows. ok is false
// when the footprint is out of bounds or overlaps.
func (c *Controller) PlaceEntity(name string, pos model.Position, direction int, payload model.Entity) (int, bool, error) {
	e := payload.Clone()
	e.Name = name
	e.Position = pos
	e.Direction = direction
	n, ok, err := c.bp.Place(e)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		c.overlay.SetBuildable(false)
		c.metrics.Gesture("place", false)
		return 0, false, nil
	}
	if r, err := c.bp.Record(n); err == nil {
		c.redrawSurroundingEntities(r)
	}
	c.metrics.Gesture("place", true)
	return n, true, nil
}

func (c *Controller) BeginPainting() bool {
	if c.mode != Idle {
		return false
	}
	c.mode = Painting
	c.clearHover()
	return true
}

func (c *Controller) EndPainting() bool {
	if c.mode != Painting {
		return false
	}
	c.mode = Idle
	return true
}

func (c *Controller) PointerOver(n int) {
	if c.hover != 0 && c.hover != n {
		c.PointerOut(c.hover)
	}
	if c.mode != Idle {
		return
	}
	m, ok := c.reg.Get(n)
	if !ok {
		return
	}
	r, err := c.bp.Record(n)
	if err != nil {
		return
	}
	c.hover = n
	size := r.Size()
	c.overlay.UpdateCursorBoxSize(size.X, size.Y)
	c.overlay.UpdateCursorBoxPosition(m.Position())
	c.overlay.ShowCursorBox()
	c.overlay.UpdateUndergroundLinesPosition(m.Position())
	c.updateUndergroundLines(n)
}

func (c *Controller) PointerOut(n int) {
	if c.mode == Idle && c.hover == n {
		c.clearHover()
	}
}

func (c *Controller) clearHover() {
	c.hover = 0
	c.overlay.HideCursorBox()
	c.overlay.HideUndergroundLines()
}

// ChangeRecipe sets the recipe of n. Chemical plants and fluid recipes
// change pipe connections, so they redraw with their neighbours.
func (c *Controller) ChangeRecipe(n int, recipe string) error {
	before, err := c.bp.Record(n)
	if err != nil {
		return err
	}
	if err := c.bp.SetRecipe(n, recipe); err != nil {
		return err
	}
	c.afterRecipeChange(before)
	return nil
}

// CopyData stores the recipe and modules of n in the clipboard.
func (c *Controller) CopyData(n int) bool {
	r, err := c.bp.Record(n)
	if err != nil {
		return false
	}
	c.clipboard = Clipboard{Recipe: r.Recipe(), Modules: r.ModulesList()}
	c.metrics.Gesture("copy", true)
	return true
}

// PasteData applies the clipboard to n.
func (c *Controller) PasteData(n int) bool {
	before, err := c.bp.Record(n)
	if err != nil {
		return false
	}
	changed, err := c.bp.PasteData(n, c.clipboard.Recipe, c.clipboard.Modules)
	if err != nil || !changed {
		c.metrics.Gesture("paste", false)
		return false
	}
	if after, err := c.bp.Record(n); err == nil && after.Recipe() != before.Recipe() {
		c.afterRecipeChange(before)
	}
	c.metrics.Gesture("paste", true)
	return true
}

func (c *Controller) afterRecipeChange(before record.Record) {
	after, err := c.bp.Record(before.EntityNumber())
	if err != nil {
		return
	}
	if before.Name() == "chemical-plant" || before.AssemblerCraftsWithFluid() || after.AssemblerCraftsWithFluid() {
		if m, ok := c.reg.Get(after.EntityNumber()); ok {
			m.Redraw(false)
		}
		c.redrawSurroundingEntities(after)
	}
}

func (c *Controller) updateVisuals(n int) {
	m, ok := c.reg.Get(n)
	if !ok {
		return
	}
	c.overlay.UpdateCursorBoxPosition(m.Position())
	c.overlay.UpdateUndergroundLinesPosition(m.Position())
	c.updateUndergroundLines(n)
	c.wires.Update(n)
	c.checkBuildable(n)
}

func (c *Controller) updateUndergroundLines(n int) {
	m, ok := c.reg.Get(n)
	if !ok {
		return
	}
	r, err := c.bp.Record(n)
	if err != nil {
		return
	}
	search := r.Direction()
	if r.DirectionType() == model.DirectionOutput || r.Name() == "pipe-to-ground" {
		search = model.Opposite(search)
	}
	p := m.Position()
	c.overlay.UpdateUndergroundLines(r.Name(),
		model.Position{X: p.X / c.snap.Tile, Y: p.Y / c.snap.Tile}, r.Direction(), search)
}

// checkBuildable tints the dragged entity by whether it could be dropped at
// its current mirror position.
func (c *Controller) checkBuildable(n int) bool {
	m, ok := c.reg.Get(n)
	if !ok {
		return false
	}
	r, err := c.bp.Record(n)
	if err != nil {
		return false
	}
	pos := c.snap.GridPosition(m.Position())
	buildable := c.bp.Grid().InBounds(r.AreaAt(pos)) &&
		c.bp.Grid().CheckNoOverlap(r.Name(), r.Direction(), pos)
	c.overlay.SetBuildable(buildable)
	return buildable
}

// redrawSurroundingEntities redraws neighbours whose look depends on r, as
// listed by the catalog's update groups. Rails redraw the gates on top of
// them instead of their ring. It returns the redrawn entity numbers.
func (c *Controller) redrawSurroundingEntities(r record.Record) []int {
	var redrawn []int
	seen := map[int]bool{}
	for _, updates := range c.bp.Catalogs().Dependents(r.Name()) {
		visit := func(m int) {
			if seen[m] || m == r.EntityNumber() {
				return
			}
			e, ok := c.bp.Entity(m)
			if !ok || !containsName(updates, e.Name) {
				return
			}
			if mm, ok := c.reg.Get(m); ok {
				mm.Redraw(false)
			}
			seen[m] = true
			redrawn = append(redrawn, m)
		}
		if r.Kind() == "straight-rail" {
			c.bp.Grid().ForeachOverlap(r.Area(), visit)
		} else {
			c.bp.Grid().GetSurroundingEntities(r.Area(), visit)
		}
	}
	return redrawn
}

// forget clears controller state tied to a destroyed mirror.
func (c *Controller) forget(n int) {
	if c.editing == n {
		c.editing = 0
		c.editor.Close()
	}
	if c.hover == n {
		c.clearHover()
	}
	if c.moving == n {
		c.moving = 0
		c.mode = Idle
	}
}

func containsName(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ mirror.Gestures = (*Controller)(nil)
