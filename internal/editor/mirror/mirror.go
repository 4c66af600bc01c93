package mirror

import (
	"sort"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/store"
)

// Pixel is a screen-space point in pixels.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a hit area relative to the mirror position.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

func (r Rect) Contains(dx, dy float64) bool {
	return dx >= r.X && dx < r.X+r.Width && dy >= r.Y && dy < r.Y+r.Height
}

// Part is one drawable piece returned by the renderer.
type Part struct {
	Sprite string `json:"sprite"`
	ZIndex int    `json:"z"`
	ZOrder int    `json:"order"`
	Moving bool   `json:"moving,omitempty"`
}

// Renderer turns a snapshot into drawable parts. ignoreConnections asks for
// parts that do not depend on neighbours.
type Renderer interface {
	Parts(e model.Entity, moving, ignoreConnections bool) []Part
}

// Overlay draws the hover cursor box, underground-line indicators and the
// buildability tint. Calls are fire-and-forget.
type Overlay interface {
	ShowCursorBox()
	HideCursorBox()
	UpdateCursorBoxPosition(p Pixel)
	UpdateCursorBoxSize(w, h int)
	UpdateUndergroundLines(name string, pos model.Position, direction, searchDirection int)
	UpdateUndergroundLinesPosition(p Pixel)
	HideUndergroundLines()
	SetBuildable(ok bool)
}

// Wires redraws wire paths attached to an entity.
type Wires interface {
	Update(n int)
	Remove(n int)
}

// Editor is the property dialog.
type Editor interface {
	Open(n int)
	Close()
}

type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

type Modifiers struct {
	Shift bool `json:"shift,omitempty"`
}

// Gestures receives pointer input that landed on a mirror.
type Gestures interface {
	PointerDown(n int, button Button, mods Modifiers, at Pixel)
	PointerOver(n int)
	PointerOut(n int)
}

// Source resolves committed snapshots.
type Source interface {
	Entity(n int) (model.Entity, bool)
}

// Mirror is the on-screen counterpart of one entity.
type Mirror struct {
	n        int
	reg      *Registry
	pos      Pixel
	parts    []Part
	hit      Rect
	floating bool
	redraws  int
}

func (m *Mirror) EntityNumber() int { return m.n }
func (m *Mirror) Position() Pixel   { return m.pos }
func (m *Mirror) Floating() bool    { return m.floating }
func (m *Mirror) HitArea() Rect     { return m.hit }
func (m *Mirror) Redraws() int      { return m.redraws }

// Parts returns a copy of the current drawable parts.
func (m *Mirror) Parts() []Part { return append([]Part(nil), m.parts...) }

func (m *Mirror) SetPosition(p Pixel) { m.pos = p }

// SetFloating marks the mirror as being dragged; its parts are drawn as
// moving.
func (m *Mirror) SetFloating(v bool) {
	m.floating = v
	for i := range m.parts {
		m.parts[i].Moving = v
	}
}

// Redraw re-derives parts and hit area from the committed snapshot.
func (m *Mirror) Redraw(ignoreConnections bool) {
	e, ok := m.reg.src.Entity(m.n)
	if !ok {
		return
	}
	kind := e.Name
	size := model.Size{X: 1, Y: 1}
	if def, err := m.reg.cat.Entity(e.Name); err == nil {
		kind = def.Type
		size = model.RotatedSize(model.Size{X: def.Size.X, Y: def.Size.Y}, e.Direction)
	}
	var parts []Part
	if m.reg.renderer != nil {
		parts = m.reg.renderer.Parts(e, m.floating, ignoreConnections)
	}
	for i := range parts {
		parts[i].ZIndex = ZIndex(e.Name, kind, i)
		parts[i].ZOrder = i
		parts[i].Moving = m.floating
	}
	m.parts = parts
	tile := m.reg.tile
	m.hit = Rect{
		X:      -float64(size.X) * tile / 2,
		Y:      -float64(size.Y) * tile / 2,
		Width:  float64(size.X) * tile,
		Height: float64(size.Y) * tile,
	}
	m.redraws++
}

func (m *Mirror) PointerDown(button Button, mods Modifiers, at Pixel) {
	if g := m.reg.gestures; g != nil {
		g.PointerDown(m.n, button, mods, at)
	}
}

func (m *Mirror) PointerOver() {
	if g := m.reg.gestures; g != nil {
		g.PointerOver(m.n)
	}
}

func (m *Mirror) PointerOut() {
	if g := m.reg.gestures; g != nil {
		g.PointerOut(m.n)
	}
}

// ZIndex orders parts: rails below belts and heat pipes, everything else on
// top.
func ZIndex(name, kind string, i int) int {
	switch {
	case name == "straight-rail" || name == "curved-rail":
		switch {
		case i < 2:
			return -10
		case i < 4:
			return -9
		default:
			return -8
		}
	case kind == "transport-belt" || name == "heat-pipe":
		if i == 0 {
			return -7
		}
		return -6
	default:
		return 0
	}
}

// Registry owns the mirrors, one per entity present in the store.
type Registry struct {
	src      Source
	cat      *catalogs.Catalogs
	renderer Renderer
	tile     float64
	gestures Gestures
	mirrors  map[int]*Mirror

	// OnDestroy runs after a mirror is removed.
	OnDestroy func(n int)
}

func NewRegistry(src Source, cat *catalogs.Catalogs, renderer Renderer, tileSize float64) *Registry {
	if tileSize <= 0 {
		tileSize = 32
	}
	return &Registry{
		src:      src,
		cat:      cat,
		renderer: renderer,
		tile:     tileSize,
		mirrors:  map[int]*Mirror{},
	}
}

func (r *Registry) SetGestures(g Gestures) { r.gestures = g }

func (r *Registry) TileSize() float64 { return r.tile }

func (r *Registry) Len() int { return len(r.mirrors) }

func (r *Registry) Get(n int) (*Mirror, bool) {
	m, ok := r.mirrors[n]
	return m, ok
}

// Numbers lists entity numbers with a mirror, ascending.
func (r *Registry) Numbers() []int {
	out := make([]int, 0, len(r.mirrors))
	for n := range r.mirrors {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Create builds the mirror of a stored entity. It returns false when the
// mirror already exists or the entity is not in the store.
func (r *Registry) Create(n int) (*Mirror, bool) {
	if _, ok := r.mirrors[n]; ok {
		return nil, false
	}
	e, ok := r.src.Entity(n)
	if !ok {
		return nil, false
	}
	m := &Mirror{n: n, reg: r, pos: r.ToPixel(e.Position)}
	r.mirrors[n] = m
	m.Redraw(false)
	return m, true
}

// Destroy removes the mirror of n. A second call reports false.
func (r *Registry) Destroy(n int) bool {
	if _, ok := r.mirrors[n]; !ok {
		return false
	}
	delete(r.mirrors, n)
	if r.OnDestroy != nil {
		r.OnDestroy(n)
	}
	return true
}

// ToPixel converts a grid position to its screen position.
func (r *Registry) ToPixel(p model.Position) Pixel {
	return Pixel{X: p.X * r.tile, Y: p.Y * r.tile}
}

// OnCommit keeps mirrors in step with the store: new entities get a mirror,
// removed ones lose it and changed ones are redrawn. A floating mirror keeps
// the position the pointer gave it.
func (r *Registry) OnCommit(ev store.Event) {
	for _, n := range ev.Affected {
		e, present := ev.After.Entities.Get(n)
		m, exists := r.mirrors[n]
		switch {
		case !present && exists:
			r.Destroy(n)
		case present && !exists:
			r.Create(n)
		case present && exists:
			if !m.floating {
				m.pos = r.ToPixel(e.Position)
			}
			m.Redraw(m.floating)
		}
	}
}

var _ store.Observer = (*Registry)(nil)
