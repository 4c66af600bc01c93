package blueprint

import (
	"errors"
	"fmt"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/grid"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/record"
	"beltline.dev/internal/editor/store"
)

var (
	ErrUnknownEntity = store.ErrUnknownEntity
	ErrUnknownRecipe = errors.New("unknown recipe")
	ErrDoesNotFit    = errors.New("entity does not fit")
)

// Blueprint ties the store, the occupancy grid and the prototype catalog
// together. The grid follows the store through a commit observer; entities
// picked up for dragging are left out of the grid until they are dropped.
type Blueprint struct {
	cat   *catalogs.Catalogs
	store *store.Store
	grid  *grid.Grid
}

func New(cat *catalogs.Catalogs, width, height, historyLimit int) *Blueprint {
	b := &Blueprint{cat: cat, store: store.New(historyLimit)}
	b.grid = grid.New(width, height, storeSource{b.store}, geometry{cat})
	b.store.Subscribe(store.ObserverFunc(b.syncGrid))
	return b
}

func (b *Blueprint) Catalogs() *catalogs.Catalogs { return b.cat }
func (b *Blueprint) Store() *store.Store          { return b.store }
func (b *Blueprint) Grid() *grid.Grid             { return b.grid }
func (b *Blueprint) Current() model.Version       { return b.store.Current() }
func (b *Blueprint) History() []store.LogEntry    { return b.store.History() }

func (b *Blueprint) Entity(n int) (model.Entity, bool) { return b.store.Entity(n) }

// Record returns the view of entity n.
func (b *Blueprint) Record(n int) (record.Record, error) {
	e, ok := b.store.Entity(n)
	if !ok {
		return record.Record{}, fmt.Errorf("%w: %d", ErrUnknownEntity, n)
	}
	return record.New(e, b.cat)
}

// Size is the rotated footprint size of a kind.
func (b *Blueprint) Size(name string, direction int) (model.Size, error) {
	return geometry{b.cat}.Size(name, direction)
}

// CanPlace reports whether an entity of the kind fits at pos: inside the
// blueprint and not overlapping anything it cannot stack with.
func (b *Blueprint) CanPlace(name string, direction int, pos model.Position) (bool, error) {
	size, err := b.Size(name, direction)
	if err != nil {
		return false, err
	}
	if !b.grid.InBounds(model.AreaAt(pos, size)) {
		return false, nil
	}
	return b.grid.CheckNoOverlap(name, direction, pos), nil
}

// Place adds an entity built from e with a fresh entity number. The number
// on e is ignored. ok is false when the footprint is out of bounds or taken.
func (b *Blueprint) Place(e model.Entity) (int, bool, error) {
	e.Direction = model.NormalizeDirection(e.Direction)
	fits, err := b.CanPlace(e.Name, e.Direction, e.Position)
	if err != nil || !fits {
		return 0, false, err
	}
	e = e.Clone()
	e.EntityNumber = b.store.NextEntityNumber()
	if _, err := b.store.Commit(record.Place(e)); err != nil {
		return 0, false, err
	}
	b.grid.Occupy(e.EntityNumber)
	return e.EntityNumber, true, nil
}

// Move commits a new position for n. The entity's own cells do not count as
// an overlap.
func (b *Blueprint) Move(n int, pos model.Position) (bool, error) {
	r, err := b.Record(n)
	if err != nil {
		return false, err
	}
	wasOccupied := b.grid.Vacate(n)
	if !b.grid.CheckNoOverlap(r.Name(), r.Direction(), pos) {
		if wasOccupied {
			b.grid.Occupy(n)
		}
		return false, nil
	}
	if _, err := b.store.Commit(r.Move(pos)); err != nil {
		if wasOccupied {
			b.grid.Occupy(n)
		}
		return false, err
	}
	b.grid.Occupy(n)
	return true, nil
}

// Rotate advances n to its next direction. partner, when non-zero, is an
// underground belt rotated in the same transaction. offset re-centres
// non-square footprints while dragging.
func (b *Blueprint) Rotate(n int, notMoving bool, offset model.Position, partner int) (bool, error) {
	r, err := b.Record(n)
	if err != nil {
		return false, err
	}
	plan, ok := r.PlanRotation(notMoving, b.grid.IsOccupied(n) && b.grid.SharesCell(r.Area()), offset, true)
	if !ok {
		return false, nil
	}
	if notMoving && !b.rotatedFits(r, plan) {
		return false, nil
	}
	tx := r.Rotate(plan)

	if partner != 0 {
		pr, err := b.Record(partner)
		if err != nil {
			return false, err
		}
		if pp, ok := pr.PlanRotation(notMoving, b.grid.IsOccupied(partner) && b.grid.SharesCell(pr.Area()), model.Position{}, false); ok {
			tx = tx.Merge(pr.Rotate(pp))
		}
	}
	if _, err := b.store.Commit(tx); err != nil {
		return false, err
	}
	return true, nil
}

// rotatedFits checks the footprint a stationary entity would have after the
// plan. Square footprints keep their cells.
func (b *Blueprint) rotatedFits(r record.Record, plan record.RotationPlan) bool {
	after, err := b.Size(r.Name(), plan.Direction)
	if err != nil {
		return false
	}
	if after == r.Size() && plan.Position == r.Position() {
		return true
	}
	n := r.EntityNumber()
	wasOccupied := b.grid.Vacate(n)
	fits := b.grid.InBounds(model.AreaAt(plan.Position, after)) &&
		b.grid.CheckNoOverlap(r.Name(), plan.Direction, plan.Position)
	if wasOccupied {
		b.grid.Occupy(n)
	}
	return fits
}

func (b *Blueprint) SetRecipe(n int, recipe string) error {
	r, err := b.Record(n)
	if err != nil {
		return err
	}
	if recipe != "" {
		if _, ok := b.cat.Recipe(recipe); !ok {
			return fmt.Errorf("set recipe: %w: %q", ErrUnknownRecipe, recipe)
		}
	}
	_, err = b.store.Commit(r.SetRecipe(recipe))
	return err
}

func (b *Blueprint) SetModules(n int, modules []string) error {
	r, err := b.Record(n)
	if err != nil {
		return err
	}
	_, err = b.store.Commit(r.SetModules(modules))
	return err
}

// SetDirection sets an absolute direction. ok is false when the resulting
// footprint would not fit.
func (b *Blueprint) SetDirection(n, direction int) (bool, error) {
	r, err := b.Record(n)
	if err != nil {
		return false, err
	}
	plan := record.RotationPlan{Direction: model.NormalizeDirection(direction), Position: r.Position()}
	if b.grid.IsOccupied(n) && !b.rotatedFits(r, plan) {
		return false, nil
	}
	_, err = b.store.Commit(r.SetDirection(direction))
	return err == nil, err
}

// Change replaces kind and direction, e.g. to upgrade a belt tier.
func (b *Blueprint) Change(n int, name string, direction int) (bool, error) {
	r, err := b.Record(n)
	if err != nil {
		return false, err
	}
	if _, err := b.cat.Entity(name); err != nil {
		return false, err
	}
	wasOccupied := b.grid.Vacate(n)
	fits := true
	if wasOccupied {
		size, _ := b.Size(name, direction)
		fits = b.grid.InBounds(model.AreaAt(r.Position(), size)) &&
			b.grid.CheckNoOverlap(name, model.NormalizeDirection(direction), r.Position())
		b.grid.Occupy(n)
	}
	if !fits {
		return false, nil
	}
	_, err = b.store.Commit(r.Change(name, direction))
	return err == nil, err
}

// Remove deletes n and every wire reference to it atomically.
func (b *Blueprint) Remove(n int) error {
	r, err := b.Record(n)
	if err != nil {
		return err
	}
	wasOccupied := b.grid.Vacate(n)
	if _, err := b.store.Commit(r.Remove(b.store.Current().Entities)); err != nil {
		if wasOccupied {
			b.grid.Occupy(n)
		}
		return err
	}
	return nil
}

// Connect links two entities with a wire of the given color.
func (b *Blueprint) Connect(a, sideA, other, sideB int, color string) error {
	ra, err := b.Record(a)
	if err != nil {
		return err
	}
	rb, err := b.Record(other)
	if err != nil {
		return err
	}
	tx, err := ra.Connect(rb, sideA, sideB, color)
	if err != nil {
		return err
	}
	_, err = b.store.Commit(tx)
	return err
}

// PasteData applies a copied recipe and module list to n.
func (b *Blueprint) PasteData(n int, recipe string, modules []string) (bool, error) {
	r, err := b.Record(n)
	if err != nil {
		return false, err
	}
	tx, ok := r.PasteData(recipe, modules)
	if !ok {
		return false, nil
	}
	if _, err := b.store.Commit(tx); err != nil {
		return false, err
	}
	return true, nil
}

// PickUp vacates n so it can float while dragged.
func (b *Blueprint) PickUp(n int) bool { return b.grid.Vacate(n) }

// PutBack re-occupies the grid for n at its committed position.
func (b *Blueprint) PutBack(n int) bool { return b.grid.Occupy(n) }

// Load replaces the blueprint contents. Entities that do not fit are
// rejected with an error and nothing changes.
func (b *Blueprint) Load(entities []model.Entity, nextNumber int) error {
	seen := map[int]struct{}{}
	for _, e := range entities {
		if e.EntityNumber <= 0 {
			return fmt.Errorf("load: invalid entity number %d", e.EntityNumber)
		}
		if _, dup := seen[e.EntityNumber]; dup {
			return fmt.Errorf("load: %w: %d", store.ErrDuplicateEntity, e.EntityNumber)
		}
		seen[e.EntityNumber] = struct{}{}
		if _, err := b.cat.Entity(e.Name); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	if err := b.checkFit(entities); err != nil {
		return err
	}
	_, err := b.store.Reset(model.NewCollection(entities...), nextNumber)
	return err
}

// checkFit lays entities out on a scratch grid of the same bounds, in order,
// and fails on the first one that is out of bounds or overlaps an earlier one.
func (b *Blueprint) checkFit(entities []model.Entity) error {
	src := footprintSource{}
	scratch := grid.New(b.grid.Width(), b.grid.Height(), src, geometry{b.cat})
	for _, e := range entities {
		size, err := b.Size(e.Name, e.Direction)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		if !scratch.InBounds(model.AreaAt(e.Position, size)) {
			return fmt.Errorf("load: %w: %d out of bounds", ErrDoesNotFit, e.EntityNumber)
		}
		if !scratch.CheckNoOverlap(e.Name, e.Direction, e.Position) {
			return fmt.Errorf("load: %w: %d overlaps", ErrDoesNotFit, e.EntityNumber)
		}
		src[e.EntityNumber] = grid.Footprint{Name: e.Name, Direction: e.Direction, Position: e.Position}
		scratch.Occupy(e.EntityNumber)
	}
	return nil
}

// syncGrid keeps grid claims in step with committed snapshots. Only entities
// already on the grid are re-occupied; floating entities stay off it.
func (b *Blueprint) syncGrid(ev store.Event) {
	if ev.Reset {
		b.grid.Reset()
		ev.After.Entities.Each(func(e model.Entity) bool {
			b.grid.Occupy(e.EntityNumber)
			return true
		})
		return
	}
	for _, n := range ev.Affected {
		if !b.grid.Vacate(n) {
			continue
		}
		if ev.After.Entities.Has(n) {
			b.grid.Occupy(n)
		}
	}
}

type storeSource struct{ s *store.Store }

func (src storeSource) Footprint(n int) (grid.Footprint, bool) {
	e, ok := src.s.Entity(n)
	if !ok {
		return grid.Footprint{}, false
	}
	return grid.Footprint{Name: e.Name, Direction: e.Direction, Position: e.Position}, true
}

type footprintSource map[int]grid.Footprint

func (src footprintSource) Footprint(n int) (grid.Footprint, bool) {
	f, ok := src[n]
	return f, ok
}

type geometry struct{ cat *catalogs.Catalogs }

func (g geometry) Size(name string, direction int) (model.Size, error) {
	def, err := g.cat.Entity(name)
	if err != nil {
		return model.Size{}, err
	}
	return model.RotatedSize(model.Size{X: def.Size.X, Y: def.Size.Y}, direction), nil
}

func (g geometry) CanStack(a, b string) bool { return g.cat.CanStack(a, b) }

// IsUnknown reports whether err stems from a missing entity or prototype.
func IsUnknown(err error) bool {
	return errors.Is(err, ErrUnknownEntity) || errors.Is(err, catalogs.ErrUnknownEntity)
}
