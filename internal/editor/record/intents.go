package record

import (
	"errors"
	"fmt"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/store"
)

// Place creates the transaction that adds a new entity.
func Place(e model.Entity) store.Transaction {
	return store.NewTransaction("Added entity", store.TagAdd, store.Put(e))
}

// SetRecipe changes the recipe. Productivity modules are dropped when the
// new recipe is outside their limitation list.
func (r Record) SetRecipe(recipe string) store.Transaction {
	e := r.e.Clone()
	e.Recipe = recipe
	if recipe != "" && !r.cat.ProductivityAllowed(recipe) {
		e.Items = withoutProductivity(e.Items)
	}
	return store.NewTransaction("Changed recipe", store.TagUpdate, store.Update(e))
}

// SetModules stores a module list, collapsing repeats into counts.
func (r Record) SetModules(list []string) store.Transaction {
	e := r.e.Clone()
	e.Items = collapse(list)
	return store.NewTransaction("Changed modules", store.TagUpdate, store.Update(e))
}

func (r Record) SetDirection(direction int) store.Transaction {
	e := r.e.Clone()
	e.Direction = model.NormalizeDirection(direction)
	return store.NewTransaction(fmt.Sprintf("Set entity direction to %d", e.Direction), store.TagUpdate, store.Update(e))
}

// Change swaps the kind and direction in place, e.g. belt tier upgrades.
func (r Record) Change(name string, direction int) store.Transaction {
	e := r.e.Clone()
	e.Name = name
	e.Direction = model.NormalizeDirection(direction)
	return store.NewTransaction("Changed Entity", store.TagUpdate, store.Update(e))
}

// Move commits a new centre position. Consecutive moves of one entity
// collapse in the operation log.
func (r Record) Move(pos model.Position) store.Transaction {
	e := r.e.Clone()
	e.Position = pos
	return store.NewTransaction("Moved entity", store.TagMove, store.Update(e))
}

// Rotate applies a plan produced by PlanRotation on this record.
func (r Record) Rotate(plan RotationPlan) store.Transaction {
	e := r.e.Clone()
	e.Direction = plan.Direction
	e.Type = plan.DirectionType
	e.Position = plan.Position
	return store.Transaction{
		Label:     "Rotated entity",
		Tag:       store.TagUpdate,
		NoHistory: !plan.PushToHistory,
		Deltas:    []store.Delta{store.Update(e)},
	}
}

// Remove deletes the entity and every wire reference to it held by entities
// in c, as one transaction.
func (r Record) Remove(c model.Collection) store.Transaction {
	n := r.e.EntityNumber
	var deltas []store.Delta
	// Links are not guaranteed to be mutual, so every holder is searched.
	c.Each(func(other model.Entity) bool {
		if other.EntityNumber == n || !other.Connections.References(n) {
			return true
		}
		o := other.Clone()
		o.Connections = o.Connections.Without(n)
		deltas = append(deltas, store.Update(o))
		return true
	})
	deltas = append(deltas, store.Remove(n))
	return store.NewTransaction("Removed entity", store.TagDelete, deltas...)
}

// ErrInvalidWire rejects a wire that cannot exist.
var ErrInvalidWire = errors.New("invalid wire")

// Connect links side of r to otherSide of other with a wire of the given
// color. Both endpoints store the link.
func (r Record) Connect(other Record, side, otherSide int, color string) (store.Transaction, error) {
	if r.e.EntityNumber == other.e.EntityNumber {
		return store.Transaction{}, fmt.Errorf("connect: %w: entity %d to itself", ErrInvalidWire, r.e.EntityNumber)
	}
	if color != model.WireRed && color != model.WireGreen {
		return store.Transaction{}, fmt.Errorf("connect: %w: unknown color %q", ErrInvalidWire, color)
	}
	a := r.e.Clone()
	b := other.e.Clone()
	a.Connections = a.Connections.With(sideKey(side), color, model.ConnectionRef{EntityID: b.EntityNumber, CircuitID: otherSide})
	b.Connections = b.Connections.With(sideKey(otherSide), color, model.ConnectionRef{EntityID: a.EntityNumber, CircuitID: side})
	return store.NewTransaction("Connected entities", store.TagUpdate, store.Update(a), store.Update(b)), nil
}

// PasteData applies a copied recipe and module list. Modules are filtered by
// what the entity accepts and truncated to its slots; the recipe is kept only
// if accepted. ok is false when nothing would change.
func (r Record) PasteData(recipe string, modules []string) (store.Transaction, bool) {
	e := r.e.Clone()

	accepted := r.AcceptedModules()
	if accepted != nil && len(modules) > 0 {
		var kept []string
		for _, m := range modules {
			if contains(accepted, m) {
				kept = append(kept, m)
			}
		}
		if slots := r.ModuleSlots(); len(kept) > slots {
			kept = kept[:slots]
		}
		e.Items = collapse(kept)
	} else {
		e.Items = nil
	}

	if recipe != "" && !contains(r.AcceptedRecipes(), recipe) {
		recipe = ""
	}
	if e.Recipe != recipe {
		e.Recipe = recipe
		if recipe != "" && !r.cat.ProductivityAllowed(recipe) {
			e.Items = withoutProductivity(e.Items)
		}
	}
	if sameItems(e.Items, r.e.Items) && e.Recipe == r.e.Recipe {
		return store.Transaction{}, false
	}
	return store.NewTransaction("Pasted data", store.TagUpdate, store.Update(e)), true
}

func sideKey(side int) string {
	if side == 2 {
		return model.Side2
	}
	return model.Side1
}

func collapse(list []string) map[string]int {
	if len(list) == 0 {
		return nil
	}
	out := make(map[string]int, len(list))
	for _, m := range list {
		out[m]++
	}
	return out
}

func withoutProductivity(items map[string]int) map[string]int {
	if items == nil {
		return nil
	}
	out := make(map[string]int, len(items))
	for k, v := range items {
		if !catalogs.IsProductivityModule(k) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sameItems(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
