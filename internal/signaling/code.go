package signaling

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

const (
	// RoomCodeLength is the length of generated codes.
	RoomCodeLength = 6
	// MinRoomCodeLength is the shortest code accepted from user input.
	MinRoomCodeLength = 4

	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultNamespace scopes room documents on a shared relay.
	DefaultNamespace = "bridge-link-v1"
)

// NewRoomCode returns a random six character uppercase alphanumeric code.
func NewRoomCode() (string, error) {
	var sb strings.Builder
	alphabetSize := big.NewInt(int64(len(roomCodeAlphabet)))
	for range RoomCodeLength {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		sb.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeRoomCode trims and uppercases a code typed by a user and checks
// that it is alphanumeric and long enough.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < MinRoomCodeLength {
		return "", fmt.Errorf("%w: %q is shorter than %d characters", ErrInvalidRoomCode, code, MinRoomCodeLength)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidRoomCode, code, r)
		}
	}
	return code, nil
}

// ParseJoinInput accepts a bare room code or a join link carrying the code
// as ?room=CODE or as the last path segment (/r/CODE).
func ParseJoinInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "/") && !strings.Contains(input, "?") {
		return NormalizeRoomCode(input)
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoomCode, err)
	}
	if room := u.Query().Get("room"); room != "" {
		return NormalizeRoomCode(room)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return NormalizeRoomCode(segments[len(segments)-1])
}

// JoinLink builds the shareable link for a room on the given web base URL.
func JoinLink(base, code string) string {
	return strings.TrimRight(base, "/") + "/?room=" + url.QueryEscape(code)
}

// DocumentPath is the key of a room document on the relay.
func DocumentPath(namespace, code string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + "/rooms/" + code
}
