package store

import (
	"fmt"

	"beltline.dev/internal/editor/model"
)

type DeltaKind uint8

const (
	DeltaPut DeltaKind = iota + 1
	DeltaUpdate
	DeltaRemove
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaPut:
		return "put"
	case DeltaUpdate:
		return "update"
	case DeltaRemove:
		return "remove"
	default:
		return fmt.Sprintf("delta(%d)", uint8(k))
	}
}

// Delta is a single per-entity change inside a transaction.
type Delta struct {
	Kind   DeltaKind
	Entity model.Entity
	// Number is used by DeltaRemove.
	Number int
}

func (d Delta) EntityNumber() int {
	if d.Kind == DeltaRemove {
		return d.Number
	}
	return d.Entity.EntityNumber
}

// Put inserts a new entity.
func Put(e model.Entity) Delta { return Delta{Kind: DeltaPut, Entity: e} }

// Update replaces an existing entity.
func Update(e model.Entity) Delta { return Delta{Kind: DeltaUpdate, Entity: e} }

func Remove(n int) Delta { return Delta{Kind: DeltaRemove, Number: n} }

// Transaction groups deltas that are committed as one version bump and one
// log entry. Deltas apply in order; a later delta sees earlier ones.
type Transaction struct {
	Label     string
	Tag       string
	NoHistory bool
	Deltas    []Delta
}

func NewTransaction(label, tag string, deltas ...Delta) Transaction {
	return Transaction{Label: label, Tag: tag, Deltas: deltas}
}

func (tx Transaction) Empty() bool { return len(tx.Deltas) == 0 }

// Affected lists the distinct entity numbers touched, in delta order.
func (tx Transaction) Affected() []int {
	ids := make([]int, 0, len(tx.Deltas))
	for _, d := range tx.Deltas {
		ids = append(ids, d.EntityNumber())
	}
	return dedupe(ids)
}

// Merge appends other's deltas. Label and tag of the receiver win unless
// empty.
func (tx Transaction) Merge(other Transaction) Transaction {
	out := tx
	out.Deltas = append(append([]Delta(nil), tx.Deltas...), other.Deltas...)
	if out.Label == "" {
		out.Label = other.Label
	}
	if out.Tag == "" {
		out.Tag = other.Tag
	}
	out.NoHistory = tx.NoHistory && other.NoHistory
	return out
}

func (tx Transaction) apply(c model.Collection) (model.Collection, error) {
	for _, d := range tx.Deltas {
		n := d.EntityNumber()
		if n <= 0 {
			return c, fmt.Errorf("%s: invalid entity number %d", d.Kind, n)
		}
		switch d.Kind {
		case DeltaPut:
			if c.Has(n) {
				return c, fmt.Errorf("%w: %d", ErrDuplicateEntity, n)
			}
			c = c.Set(d.Entity)
		case DeltaUpdate:
			if !c.Has(n) {
				return c, fmt.Errorf("update: %w: %d", ErrUnknownEntity, n)
			}
			c = c.Set(d.Entity)
		case DeltaRemove:
			if !c.Has(n) {
				return c, fmt.Errorf("remove: %w: %d", ErrUnknownEntity, n)
			}
			c = c.Delete(n)
		default:
			return c, fmt.Errorf("unsupported %s", d.Kind)
		}
	}
	return c, nil
}
