package model

import (
	"math"
	"sort"
)

// Direction types of dual-role entities (underground belts).
const (
	DirectionInput  = "input"
	DirectionOutput = "output"
)

// Wire sides and colors used as Connections keys.
const (
	Side1 = "1"
	Side2 = "2"

	WireRed   = "red"
	WireGreen = "green"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) Add(o Position) Position { return Position{X: p.X + o.X, Y: p.Y + o.Y} }

type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s Size) Square() bool { return s.X == s.Y }

// Area is an axis-aligned rectangle in grid units; X,Y is the top-left corner.
type Area struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// AreaAt returns the footprint rectangle of a size centred at pos.
func AreaAt(pos Position, size Size) Area {
	return Area{
		X:      pos.X - float64(size.X)/2,
		Y:      pos.Y - float64(size.Y)/2,
		Width:  float64(size.X),
		Height: float64(size.Y),
	}
}

// Cells returns the integer cell range [x0,x1) x [y0,y1) covered by the area.
func (a Area) Cells() (x0, y0, x1, y1 int) {
	x0 = int(math.Floor(a.X + 1e-9))
	y0 = int(math.Floor(a.Y + 1e-9))
	x1 = int(math.Ceil(a.X + a.Width - 1e-9))
	y1 = int(math.Ceil(a.Y + a.Height - 1e-9))
	return
}

// Grow returns the area extended by n cells on every side.
func (a Area) Grow(n float64) Area {
	return Area{X: a.X - n, Y: a.Y - n, Width: a.Width + 2*n, Height: a.Height + 2*n}
}

type Signal struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type Filter struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type RequestFilter struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ConstantFilter struct {
	Signal Signal `json:"signal"`
	Count  int    `json:"count"`
	Index  int    `json:"index"`
}

type DeciderConditions struct {
	FirstSignal        *Signal `json:"first_signal,omitempty"`
	SecondSignal       *Signal `json:"second_signal,omitempty"`
	Constant           *int    `json:"constant,omitempty"`
	Comparator         string  `json:"comparator,omitempty"`
	OutputSignal       *Signal `json:"output_signal,omitempty"`
	CopyCountFromInput bool    `json:"copy_count_from_input,omitempty"`
}

type ArithmeticConditions struct {
	FirstSignal  *Signal `json:"first_signal,omitempty"`
	SecondSignal *Signal `json:"second_signal,omitempty"`
	Constant     *int    `json:"constant,omitempty"`
	Operation    string  `json:"operation,omitempty"`
	OutputSignal *Signal `json:"output_signal,omitempty"`
}

type ControlBehavior struct {
	Filters              []ConstantFilter      `json:"filters,omitempty"`
	DeciderConditions    *DeciderConditions    `json:"decider_conditions,omitempty"`
	ArithmeticConditions *ArithmeticConditions `json:"arithmetic_conditions,omitempty"`
}

type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type ConnectionRef struct {
	EntityID  int `json:"entity_id"`
	CircuitID int `json:"circuit_id,omitempty"`
}

// Connections maps side -> color -> links. Links are undirected but stored on
// both endpoints.
type Connections map[string]map[string][]ConnectionRef

// Entity is one immutable snapshot. Values stored in a Collection must never
// be modified; use Clone before building a changed copy.
type Entity struct {
	EntityNumber int      `json:"entity_number"`
	Name         string   `json:"name"`
	Position     Position `json:"position"`
	Direction    int      `json:"direction,omitempty"`
	// Type is the direction type ("input"/"output") of underground belts.
	Type   string         `json:"type,omitempty"`
	Recipe string         `json:"recipe,omitempty"`
	Items  map[string]int `json:"items,omitempty"`

	Filters        []Filter        `json:"filters,omitempty"`
	Filter         string          `json:"filter,omitempty"`
	InputPriority  string          `json:"input_priority,omitempty"`
	OutputPriority string          `json:"output_priority,omitempty"`
	RequestFilters []RequestFilter `json:"request_filters,omitempty"`

	ControlBehavior *ControlBehavior `json:"control_behavior,omitempty"`
	Color           *Color           `json:"color,omitempty"`
	Station         string           `json:"station,omitempty"`

	Connections Connections `json:"connections,omitempty"`
}

// Clone returns a deep copy that can be modified freely.
func (e Entity) Clone() Entity {
	out := e
	if e.Items != nil {
		out.Items = make(map[string]int, len(e.Items))
		for k, v := range e.Items {
			out.Items[k] = v
		}
	}
	out.Filters = append([]Filter(nil), e.Filters...)
	out.RequestFilters = append([]RequestFilter(nil), e.RequestFilters...)
	if e.ControlBehavior != nil {
		cb := *e.ControlBehavior
		cb.Filters = append([]ConstantFilter(nil), e.ControlBehavior.Filters...)
		if cb.DeciderConditions != nil {
			dc := *cb.DeciderConditions
			cb.DeciderConditions = &dc
		}
		if cb.ArithmeticConditions != nil {
			ac := *cb.ArithmeticConditions
			cb.ArithmeticConditions = &ac
		}
		out.ControlBehavior = &cb
	}
	if e.Color != nil {
		c := *e.Color
		out.Color = &c
	}
	out.Connections = e.Connections.Clone()
	return out
}

func (c Connections) Clone() Connections {
	if c == nil {
		return nil
	}
	out := make(Connections, len(c))
	for side, colors := range c {
		cc := make(map[string][]ConnectionRef, len(colors))
		for color, refs := range colors {
			cc[color] = append([]ConnectionRef(nil), refs...)
		}
		out[side] = cc
	}
	return out
}

// Without returns a copy with every link to entity n dropped. Empty colors
// and sides are pruned; nil is returned when nothing is left.
func (c Connections) Without(n int) Connections {
	if c == nil {
		return nil
	}
	out := Connections{}
	for side, colors := range c {
		for color, refs := range colors {
			var kept []ConnectionRef
			for _, r := range refs {
				if r.EntityID != n {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				continue
			}
			if out[side] == nil {
				out[side] = map[string][]ConnectionRef{}
			}
			out[side][color] = kept
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// With returns a copy with ref appended under side/color, unless present.
func (c Connections) With(side, color string, ref ConnectionRef) Connections {
	out := c.Clone()
	if out == nil {
		out = Connections{}
	}
	if out[side] == nil {
		out[side] = map[string][]ConnectionRef{}
	}
	for _, r := range out[side][color] {
		if r == ref {
			return out
		}
	}
	out[side][color] = append(out[side][color], ref)
	return out
}

// EntityIDs lists every linked entity number once, sorted.
func (c Connections) EntityIDs() []int {
	seen := map[int]struct{}{}
	for _, colors := range c {
		for _, refs := range colors {
			for _, r := range refs {
				seen[r.EntityID] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// References reports whether any link points at entity n.
func (c Connections) References(n int) bool {
	for _, colors := range c {
		for _, refs := range colors {
			for _, r := range refs {
				if r.EntityID == n {
					return true
				}
			}
		}
	}
	return false
}
