package session

import (
	"encoding/json"
	"errors"

	"beltline.dev/internal/editor/blueprint"
	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/record"
	"beltline.dev/internal/editor/store"
	"beltline.dev/internal/protocol"
)

type result struct {
	accepted bool
	entity   int
	code     string
	message  string
}

func rejected(code, msg string) result { return result{code: code, message: msg} }

func (s *Session) handleGesture(env Envelope) {
	s.gestures.Add(1)
	res := s.apply(env.Gesture)
	s.flush()

	c, ok := s.clients[env.ClientID]
	if !ok {
		return
	}
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.Gesture.ID,
		Accepted:        res.accepted,
		Code:            res.code,
		Message:         res.message,
		Seq:             s.bp.Current().Seq,
		Entity:          res.entity,
	}
	b, err := json.Marshal(ack)
	if err != nil {
		s.log.Printf("encode ack: %v", err)
		return
	}
	if !trySend(c.out, b) {
		s.log.Printf("ack dropped client=%s gesture=%s", c.id, env.Gesture.ID)
	}
}

func (s *Session) apply(g protocol.GestureMsg) result {
	at := mirror.Pixel{X: g.X, Y: g.Y}
	switch g.Kind {
	case protocol.GesturePointerDown, protocol.GesturePointerOver, protocol.GesturePointerOut:
		m, ok := s.reg.Get(g.Entity)
		if !ok {
			return rejected(protocol.ErrUnknownEntity, "no such entity")
		}
		switch g.Kind {
		case protocol.GesturePointerDown:
			btn, ok := protocol.ButtonValue(g.Button)
			if !ok {
				return rejected(protocol.ErrBadRequest, "unknown button")
			}
			m.PointerDown(btn, mirror.Modifiers{Shift: g.Shift}, at)
		case protocol.GesturePointerOver:
			m.PointerOver()
		default:
			m.PointerOut()
		}
		return result{accepted: true, entity: g.Entity}

	case protocol.GesturePointerMove:
		s.ctl.PointerMove(at)
		return result{accepted: true}

	case protocol.GestureDrop:
		n := s.ctl.MovingEntity()
		if !s.ctl.Drop() {
			return rejected(protocol.ErrRejected, "cannot drop here")
		}
		return result{accepted: true, entity: n}

	case protocol.GestureRotate:
		if !s.ctl.Rotate() {
			return rejected(protocol.ErrRejected, "nothing to rotate")
		}
		return result{accepted: true}

	case protocol.GestureBeginPaint:
		if !s.ctl.BeginPainting() {
			return rejected(protocol.ErrConflict, "not idle")
		}
		return result{accepted: true}

	case protocol.GestureEndPaint:
		if !s.ctl.EndPainting() {
			return rejected(protocol.ErrConflict, "not painting")
		}
		return result{accepted: true}

	case protocol.GesturePlace:
		var payload model.Entity
		if g.Payload != nil {
			payload = *g.Payload
		}
		payload.EntityNumber = 0
		n, ok, err := s.ctl.PlaceEntity(g.Name, model.Position{X: g.X, Y: g.Y}, g.Direction, payload)
		if err != nil {
			return s.failed("place", err)
		}
		if !ok {
			return rejected(protocol.ErrRejected, "footprint blocked")
		}
		return result{accepted: true, entity: n}
	}

	// The remaining gestures target an existing entity.
	if _, ok := s.bp.Entity(g.Entity); !ok {
		return rejected(protocol.ErrUnknownEntity, "no such entity")
	}
	switch g.Kind {
	case protocol.GestureDelete:
		if !s.ctl.Delete(g.Entity) {
			return rejected(protocol.ErrConflict, "delete needs idle mode")
		}
	case protocol.GestureChangeRecipe:
		if err := s.ctl.ChangeRecipe(g.Entity, g.Recipe); err != nil {
			return s.failed("change_recipe", err)
		}
	case protocol.GestureCopy:
		if !s.ctl.CopyData(g.Entity) {
			return rejected(protocol.ErrRejected, "nothing to copy")
		}
	case protocol.GesturePaste:
		if !s.ctl.PasteData(g.Entity) {
			return rejected(protocol.ErrRejected, "clipboard not applicable")
		}
	case protocol.GestureConnect:
		if err := s.bp.Connect(g.Entity, g.Side, g.Other, g.Side2, g.Color); err != nil {
			return s.failed("connect", err)
		}
		s.wires.Update(g.Entity)
		s.wires.Update(g.Other)
	default:
		return rejected(protocol.ErrBadRequest, "unknown gesture kind")
	}
	return result{accepted: true, entity: g.Entity}
}

// failed maps an operation error to a wire code. Unexpected errors are
// logged.
func (s *Session) failed(op string, err error) result {
	switch {
	case errors.Is(err, store.ErrUnknownEntity):
		return rejected(protocol.ErrUnknownEntity, err.Error())
	case errors.Is(err, blueprint.ErrUnknownRecipe), errors.Is(err, record.ErrInvalidWire):
		return rejected(protocol.ErrInvalidTarget, err.Error())
	case errors.Is(err, store.ErrReentrantOperation):
		return rejected(protocol.ErrBusy, err.Error())
	case errors.Is(err, catalogs.ErrUnknownEntity):
		s.log.Printf("%s: catalog miss: %v", op, err)
		return rejected(protocol.ErrUnknownKind, err.Error())
	default:
		s.log.Printf("%s: %v", op, err)
		return rejected(protocol.ErrInternal, "internal error")
	}
}
