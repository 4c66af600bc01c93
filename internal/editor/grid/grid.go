package grid

import (
	"sort"

	"beltline.dev/internal/editor/model"
)

// Footprint is the part of an entity snapshot the grid needs.
type Footprint struct {
	Name      string
	Direction int
	Position  model.Position
}

// Source resolves the current snapshot of an entity.
type Source interface {
	Footprint(n int) (Footprint, bool)
}

// Geometry answers prototype questions: effective size after rotation and
// which kinds may share a cell.
type Geometry interface {
	Size(name string, direction int) (model.Size, error)
	CanStack(a, b string) bool
}

type cell struct{ X, Y int }

type claim struct {
	name      string
	direction int
	cells     []cell
}

// Grid is the spatial occupancy index. Cells are logical grid units; each
// occupied cell lists the entity numbers claiming it (more than one only for
// stackable kinds). It is a cache of the store and is kept in sync by its
// callers.
type Grid struct {
	width  int
	height int
	src    Source
	geo    Geometry

	cells  map[cell][]int
	claims map[int]claim
}

func New(width, height int, src Source, geo Geometry) *Grid {
	return &Grid{
		width:  width,
		height: height,
		src:    src,
		geo:    geo,
		cells:  map[cell][]int{},
		claims: map[int]claim{},
	}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// Len is the number of entities currently occupying the grid.
func (g *Grid) Len() int { return len(g.claims) }

func (g *Grid) Reset() {
	g.cells = map[cell][]int{}
	g.claims = map[int]claim{}
}

func (g *Grid) IsOccupied(n int) bool {
	_, ok := g.claims[n]
	return ok
}

// Occupy claims every footprint cell of the entity's current snapshot. It
// returns false when the entity already occupies the grid or cannot be
// resolved.
func (g *Grid) Occupy(n int) bool {
	if _, ok := g.claims[n]; ok {
		return false
	}
	fp, ok := g.src.Footprint(n)
	if !ok {
		return false
	}
	area, ok := g.area(fp.Name, fp.Direction, fp.Position)
	if !ok {
		return false
	}
	c := claim{name: fp.Name, direction: fp.Direction}
	forEachCell(area, func(k cell) {
		g.cells[k] = append(g.cells[k], n)
		c.cells = append(c.cells, k)
	})
	g.claims[n] = c
	return true
}

// Vacate releases the cells the entity claimed. It does not consult the
// snapshot, so it works after the entity left the store.
func (g *Grid) Vacate(n int) bool {
	c, ok := g.claims[n]
	if !ok {
		return false
	}
	for _, k := range c.cells {
		occ := g.cells[k]
		for i, m := range occ {
			if m == n {
				occ = append(occ[:i:i], occ[i+1:]...)
				break
			}
		}
		if len(occ) == 0 {
			delete(g.cells, k)
		} else {
			g.cells[k] = occ
		}
	}
	delete(g.claims, n)
	return true
}

// InBounds reports whether a non-empty area lies within the blueprint
// rectangle.
func (g *Grid) InBounds(a model.Area) bool {
	if a.Width <= 0 || a.Height <= 0 {
		return false
	}
	return a.X >= 0 && a.Y >= 0 &&
		a.X+a.Width <= float64(g.width) &&
		a.Y+a.Height <= float64(g.height)
}

// CheckNoOverlap reports whether a hypothetical entity of the given kind,
// direction and centre position fits without clashing with occupants.
// Occupants of a stackable kind are tolerated.
func (g *Grid) CheckNoOverlap(name string, direction int, pos model.Position) bool {
	area, ok := g.area(name, direction, pos)
	if !ok {
		return false
	}
	free := true
	forEachCell(area, func(k cell) {
		if !free {
			return
		}
		for _, m := range g.cells[k] {
			if !g.geo.CanStack(name, g.claims[m].name) {
				free = false
				return
			}
		}
	})
	return free
}

// SharesCell reports whether any cell of the area is claimed by more than one
// entity.
func (g *Grid) SharesCell(a model.Area) bool {
	shared := false
	forEachCell(a, func(k cell) {
		if len(g.cells[k]) > 1 {
			shared = true
		}
	})
	return shared
}

// ForeachOverlap visits each distinct entity whose footprint intersects the
// area, in ascending entity number.
func (g *Grid) ForeachOverlap(a model.Area, visit func(n int)) {
	seen := map[int]struct{}{}
	forEachCell(a, func(k cell) {
		for _, m := range g.cells[k] {
			seen[m] = struct{}{}
		}
	})
	visitSorted(seen, visit)
}

// GetSurroundingEntities visits each distinct entity occupying the one-cell
// ring around the area, in ascending entity number.
func (g *Grid) GetSurroundingEntities(a model.Area, visit func(n int)) {
	ix0, iy0, ix1, iy1 := a.Cells()
	seen := map[int]struct{}{}
	forEachCell(a.Grow(1), func(k cell) {
		if k.X >= ix0 && k.X < ix1 && k.Y >= iy0 && k.Y < iy1 {
			return
		}
		for _, m := range g.cells[k] {
			seen[m] = struct{}{}
		}
	})
	visitSorted(seen, visit)
}

// FindEntityWithSameNameAndDirection steps from the cell holding from along
// searchDirection for up to maxDistance cells and returns the first occupant
// with the given name and direction.
func (g *Grid) FindEntityWithSameNameAndDirection(name string, direction int, from model.Position, searchDirection, maxDistance int) (int, bool) {
	dx, dy := model.Step(searchDirection)
	if dx == 0 && dy == 0 {
		return 0, false
	}
	x0, y0, _, _ := model.Area{X: from.X, Y: from.Y, Width: 1, Height: 1}.Cells()
	for i := 1; i <= maxDistance; i++ {
		k := cell{X: x0 + dx*i, Y: y0 + dy*i}
		for _, m := range g.cells[k] {
			c := g.claims[m]
			if c.name == name && c.direction == direction {
				return m, true
			}
		}
	}
	return 0, false
}

// Occupants returns a copy of the entity numbers claiming cell (x,y).
func (g *Grid) Occupants(x, y int) []int {
	occ := g.cells[cell{X: x, Y: y}]
	if len(occ) == 0 {
		return nil
	}
	return append([]int(nil), occ...)
}

// OccupantAt returns the first occupant of the cell containing pos.
func (g *Grid) OccupantAt(pos model.Position) (int, bool) {
	x0, y0, _, _ := model.Area{X: pos.X, Y: pos.Y, Width: 1, Height: 1}.Cells()
	occ := g.cells[cell{X: x0, Y: y0}]
	if len(occ) == 0 {
		return 0, false
	}
	return occ[0], true
}

func (g *Grid) area(name string, direction int, pos model.Position) (model.Area, bool) {
	size, err := g.geo.Size(name, direction)
	if err != nil || size.X <= 0 || size.Y <= 0 {
		return model.Area{}, false
	}
	return model.AreaAt(pos, size), true
}

func forEachCell(a model.Area, fn func(cell)) {
	x0, y0, x1, y1 := a.Cells()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			fn(cell{X: x, Y: y})
		}
	}
}

func visitSorted(seen map[int]struct{}, visit func(int)) {
	if len(seen) == 0 {
		return
	}
	ids := make([]int, 0, len(seen))
	for n := range seen {
		ids = append(ids, n)
	}
	sort.Ints(ids)
	for _, n := range ids {
		visit(n)
	}
}
