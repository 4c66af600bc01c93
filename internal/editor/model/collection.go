package model

import "github.com/benbjohnson/immutable"

type numberComparer struct{}

func (numberComparer) Compare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Collection is a persistent map of entity snapshots keyed by entity number.
// Set and Delete return a new collection that shares structure with the
// receiver; the receiver stays valid.
type Collection struct {
	m *immutable.SortedMap[int, Entity]
}

func NewCollection(entities ...Entity) Collection {
	b := immutable.NewSortedMapBuilder[int, Entity](numberComparer{})
	for _, e := range entities {
		b.Set(e.EntityNumber, e)
	}
	return Collection{m: b.Map()}
}

func (c Collection) Len() int {
	if c.m == nil {
		return 0
	}
	return c.m.Len()
}

func (c Collection) Get(n int) (Entity, bool) {
	if c.m == nil {
		return Entity{}, false
	}
	return c.m.Get(n)
}

func (c Collection) Has(n int) bool {
	_, ok := c.Get(n)
	return ok
}

func (c Collection) Set(e Entity) Collection {
	m := c.m
	if m == nil {
		m = immutable.NewSortedMap[int, Entity](numberComparer{})
	}
	return Collection{m: m.Set(e.EntityNumber, e)}
}

func (c Collection) Delete(n int) Collection {
	if c.m == nil {
		return c
	}
	return Collection{m: c.m.Delete(n)}
}

// Each visits entities in ascending entity number until fn returns false.
func (c Collection) Each(fn func(Entity) bool) {
	if c.m == nil {
		return
	}
	itr := c.m.Iterator()
	for !itr.Done() {
		_, e, ok := itr.Next()
		if !ok {
			return
		}
		if !fn(e) {
			return
		}
	}
}

func (c Collection) Numbers() []int {
	out := make([]int, 0, c.Len())
	c.Each(func(e Entity) bool {
		out = append(out, e.EntityNumber)
		return true
	})
	return out
}

func (c Collection) Slice() []Entity {
	out := make([]Entity, 0, c.Len())
	c.Each(func(e Entity) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Same reports whether both collections are the very same version.
func (c Collection) Same(o Collection) bool { return c.m == o.m }

// Version is one committed state of the store.
type Version struct {
	Seq      uint64
	Entities Collection
}
