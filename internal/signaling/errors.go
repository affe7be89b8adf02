package signaling

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrFieldExists     = errors.New("field already written")
	ErrInvalidField    = errors.New("invalid room field")
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrWriteFailed     = errors.New("signaling write failed")
	ErrClosed          = errors.New("signaling channel closed")
)

// Error codes carried on the relay wire so the client can map a failure
// back onto the sentinel above.
const (
	codeRoomNotFound = "room_not_found"
	codeRoomExists   = "room_exists"
	codeFieldExists  = "field_exists"
	codeInvalidField = "invalid_field"
	codeInternal     = "internal"
)

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return codeRoomNotFound
	case errors.Is(err, ErrRoomExists):
		return codeRoomExists
	case errors.Is(err, ErrFieldExists):
		return codeFieldExists
	case errors.Is(err, ErrInvalidField):
		return codeInvalidField
	default:
		return codeInternal
	}
}

func errorFromCode(code, msg string) error {
	switch code {
	case codeRoomNotFound:
		return ErrRoomNotFound
	case codeRoomExists:
		return ErrRoomExists
	case codeFieldExists:
		return ErrFieldExists
	case codeInvalidField:
		return ErrInvalidField
	default:
		return errors.New("relay: " + msg)
	}
}
