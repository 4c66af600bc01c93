package session

import (
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/protocol"
)

// remoteOverlay keeps the overlay state clients draw; changes go out with
// the next frame.
type remoteOverlay struct {
	state protocol.OverlayState
	dirty bool
}

func newRemoteOverlay() *remoteOverlay {
	return &remoteOverlay{state: protocol.OverlayState{Buildable: true}}
}

func (o *remoteOverlay) ShowCursorBox() {
	o.state.CursorVisible = true
	o.dirty = true
}

func (o *remoteOverlay) HideCursorBox() {
	o.state.CursorVisible = false
	o.dirty = true
}

func (o *remoteOverlay) UpdateCursorBoxPosition(p mirror.Pixel) {
	o.state.Cursor = p
	o.dirty = true
}

func (o *remoteOverlay) UpdateCursorBoxSize(w, h int) {
	o.state.CursorW, o.state.CursorH = w, h
	o.dirty = true
}

func (o *remoteOverlay) UpdateUndergroundLines(name string, pos model.Position, direction, searchDirection int) {
	o.state.Underground = &protocol.UndergroundLines{
		Name:            name,
		Position:        pos,
		Direction:       direction,
		SearchDirection: searchDirection,
	}
	o.dirty = true
}

func (o *remoteOverlay) UpdateUndergroundLinesPosition(p mirror.Pixel) {
	if o.state.Underground == nil {
		return
	}
	u := *o.state.Underground
	u.At = p
	o.state.Underground = &u
	o.dirty = true
}

func (o *remoteOverlay) HideUndergroundLines() {
	if o.state.Underground == nil {
		return
	}
	o.state.Underground = nil
	o.dirty = true
}

func (o *remoteOverlay) SetBuildable(ok bool) {
	if o.state.Buildable == ok {
		return
	}
	o.state.Buildable = ok
	o.dirty = true
}

// take returns the state when it changed since the last call.
func (o *remoteOverlay) take() *protocol.OverlayState {
	if !o.dirty {
		return nil
	}
	o.dirty = false
	return o.snapshot()
}

func (o *remoteOverlay) snapshot() *protocol.OverlayState {
	st := o.state
	return &st
}

type remoteEditor struct {
	state protocol.EditorState
	dirty bool
}

func (e *remoteEditor) Open(n int) {
	e.state = protocol.EditorState{Open: true, Entity: n}
	e.dirty = true
}

func (e *remoteEditor) Close() {
	if !e.state.Open {
		return
	}
	e.state = protocol.EditorState{}
	e.dirty = true
}

func (e *remoteEditor) take() *protocol.EditorState {
	if !e.dirty {
		return nil
	}
	e.dirty = false
	st := e.state
	return &st
}

// remoteWires collects wire redraw requests for the next frame.
type remoteWires struct {
	update []int
	remove []int
}

func (w *remoteWires) Update(n int) { w.update = appendUnique(w.update, n) }
func (w *remoteWires) Remove(n int) { w.remove = appendUnique(w.remove, n) }

func (w *remoteWires) take() *protocol.WireUpdates {
	if len(w.update) == 0 && len(w.remove) == 0 {
		return nil
	}
	out := &protocol.WireUpdates{Update: w.update, Remove: w.remove}
	w.update, w.remove = nil, nil
	return out
}

func appendUnique(list []int, n int) []int {
	for _, v := range list {
		if v == n {
			return list
		}
	}
	return append(list, n)
}

var (
	_ mirror.Overlay = (*remoteOverlay)(nil)
	_ mirror.Editor  = (*remoteEditor)(nil)
	_ mirror.Wires   = (*remoteWires)(nil)
)
