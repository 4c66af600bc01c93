package session

import (
	"encoding/json"
	"reflect"
	"sort"

	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/protocol"
)

func (s *Session) mirrorState(m *mirror.Mirror) protocol.MirrorState {
	st := protocol.MirrorState{
		Entity:   m.EntityNumber(),
		Position: m.Position(),
		Floating: m.Floating(),
		HitArea:  m.HitArea(),
		Parts:    m.Parts(),
	}
	if e, ok := s.bp.Entity(st.Entity); ok {
		st.Name = e.Name
	}
	if st.Parts == nil {
		st.Parts = []mirror.Part{}
	}
	return st
}

func (s *Session) frameHeader() protocol.FrameMsg {
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Seq:             s.bp.Current().Seq,
		Mode:            s.ctl.Mode().String(),
		Moving:          s.ctl.MovingEntity(),
		Hovered:         s.ctl.Hovered(),
	}
}

// deltaFrame collects what changed since the last frame. ok is false when
// nothing did.
func (s *Session) deltaFrame() (protocol.FrameMsg, bool) {
	f := s.frameHeader()
	live := map[int]struct{}{}
	for _, n := range s.reg.Numbers() {
		live[n] = struct{}{}
		m, _ := s.reg.Get(n)
		st := s.mirrorState(m)
		if prev, ok := s.sent[n]; ok && reflect.DeepEqual(prev, st) {
			continue
		}
		s.sent[n] = st
		f.Mirrors = append(f.Mirrors, st)
	}
	for n := range s.sent {
		if _, ok := live[n]; !ok {
			delete(s.sent, n)
			f.Removed = append(f.Removed, n)
		}
	}
	sort.Ints(f.Removed)
	f.Overlay = s.overlay.take()
	f.Editor = s.editor.take()
	f.Wires = s.wires.take()

	modeChanged := s.ctl.Mode() != s.lastMode || f.Moving != s.lastMoving || f.Hovered != s.lastHover
	s.lastMode, s.lastMoving, s.lastHover = s.ctl.Mode(), f.Moving, f.Hovered

	changed := modeChanged || len(f.Mirrors) > 0 || len(f.Removed) > 0 ||
		f.Overlay != nil || f.Editor != nil || f.Wires != nil
	return f, changed
}

// fullFrame is the complete visual state as of the last broadcast.
func (s *Session) fullFrame() protocol.FrameMsg {
	f := s.frameHeader()
	f.Full = true
	nums := make([]int, 0, len(s.sent))
	for n := range s.sent {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		f.Mirrors = append(f.Mirrors, s.sent[n])
	}
	f.Overlay = s.overlay.snapshot()
	ed := s.editor.state
	f.Editor = &ed
	return f
}

// flush broadcasts pending visual changes. Clients whose queue was full get
// a full frame instead of the next delta.
func (s *Session) flush() {
	f, changed := s.deltaFrame()
	if !changed || len(s.clients) == 0 {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Printf("encode frame: %v", err)
		return
	}
	var full []byte
	for _, c := range s.clients {
		msg := b
		if c.resync {
			if full == nil {
				if full, err = json.Marshal(s.fullFrame()); err != nil {
					s.log.Printf("encode frame: %v", err)
					return
				}
			}
			msg = full
		}
		if trySend(c.out, msg) {
			c.resync = false
		} else {
			c.resync = true
		}
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
