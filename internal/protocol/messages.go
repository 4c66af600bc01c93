package protocol

import (
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	BlueprintID     string `json:"blueprint_id,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	ClientID        string         `json:"client_id"`
	BlueprintID     string         `json:"blueprint_id"`
	Seq             uint64         `json:"seq"`
	Editor          EditorParams   `json:"editor"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type EditorParams struct {
	TileSize       int        `json:"tile_size"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	RailMoveOffset [2]float64 `json:"rail_move_offset"`
}

type CatalogDigests struct {
	Entities     string `json:"entities"`
	Recipes      string `json:"recipes"`
	Items        string `json:"items"`
	UpdateGroups string `json:"update_groups"`
	Tuning       string `json:"tuning,omitempty"`
}

// Gesture kinds.
const (
	GesturePointerDown  = "pointer_down"
	GesturePointerMove  = "pointer_move"
	GesturePointerOver  = "pointer_over"
	GesturePointerOut   = "pointer_out"
	GestureDrop         = "drop"
	GestureRotate       = "rotate"
	GestureDelete       = "delete"
	GesturePlace        = "place"
	GestureChangeRecipe = "change_recipe"
	GestureCopy         = "copy"
	GesturePaste        = "paste"
	GestureConnect      = "connect"
	GestureBeginPaint   = "begin_paint"
	GestureEndPaint     = "end_paint"
)

// Button names on the wire.
const (
	ButtonLeft   = "left"
	ButtonMiddle = "middle"
	ButtonRight  = "right"
)

// GESTURE (client -> server). Which fields matter depends on Kind.
type GestureMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Entity          int     `json:"entity,omitempty"`
	Button          string  `json:"button,omitempty"`
	Shift           bool    `json:"shift,omitempty"`
	X               float64 `json:"x,omitempty"`
	Y               float64 `json:"y,omitempty"`

	// place
	Name      string        `json:"name,omitempty"`
	Direction int           `json:"direction,omitempty"`
	Payload   *model.Entity `json:"payload,omitempty"`

	// change_recipe
	Recipe string `json:"recipe,omitempty"`

	// connect
	Other int    `json:"other,omitempty"`
	Side  int    `json:"side,omitempty"`
	Side2 int    `json:"other_side,omitempty"`
	Color string `json:"color,omitempty"`
}

// ButtonValue maps a wire button name to a mirror button.
func ButtonValue(s string) (mirror.Button, bool) {
	switch s {
	case ButtonLeft:
		return mirror.ButtonLeft, true
	case ButtonMiddle:
		return mirror.ButtonMiddle, true
	case ButtonRight:
		return mirror.ButtonRight, true
	}
	return 0, false
}

// ACK (server -> client), one per gesture.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Seq             uint64 `json:"seq"`
	Entity          int    `json:"entity,omitempty"`
}

// FRAME (server -> client): visual changes since the previous frame.
type FrameMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Seq             uint64        `json:"seq"`
	Mode            string        `json:"mode"`
	Moving          int           `json:"moving,omitempty"`
	Hovered         int           `json:"hovered,omitempty"`
	Full            bool          `json:"full,omitempty"`
	Mirrors         []MirrorState `json:"mirrors,omitempty"`
	Removed         []int         `json:"removed,omitempty"`
	Overlay         *OverlayState `json:"overlay,omitempty"`
	Editor          *EditorState  `json:"editor,omitempty"`
	Wires           *WireUpdates  `json:"wires,omitempty"`
}

type MirrorState struct {
	Entity   int           `json:"entity"`
	Name     string        `json:"name"`
	Position mirror.Pixel  `json:"position"`
	Floating bool          `json:"floating,omitempty"`
	HitArea  mirror.Rect   `json:"hit_area"`
	Parts    []mirror.Part `json:"parts"`
}

type OverlayState struct {
	CursorVisible bool              `json:"cursor_visible"`
	Cursor        mirror.Pixel      `json:"cursor"`
	CursorW       int               `json:"cursor_w"`
	CursorH       int               `json:"cursor_h"`
	Buildable     bool              `json:"buildable"`
	Underground   *UndergroundLines `json:"underground,omitempty"`
}

type UndergroundLines struct {
	Name            string         `json:"name"`
	Position        model.Position `json:"position"`
	Direction       int            `json:"direction"`
	SearchDirection int            `json:"search_direction"`
	At              mirror.Pixel   `json:"at"`
}

type EditorState struct {
	Open   bool `json:"open"`
	Entity int  `json:"entity,omitempty"`
}

type WireUpdates struct {
	Update []int `json:"update,omitempty"`
	Remove []int `json:"remove,omitempty"`
}
