package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session routing/state.
	ErrBusy              = "E_BUSY"
	ErrBlueprintNotFound = "E_BLUEPRINT_NOT_FOUND"

	// Gesture layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownEntity = "E_UNKNOWN_ENTITY"
	ErrUnknownKind   = "E_UNKNOWN_PROTOTYPE"
	ErrRejected      = "E_REJECTED"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrProtoVersion:      {},
	ErrBusy:              {},
	ErrBlueprintNotFound: {},
	ErrBadRequest:        {},
	ErrUnknownEntity:     {},
	ErrUnknownKind:       {},
	ErrRejected:          {},
	ErrInvalidTarget:     {},
	ErrConflict:          {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
