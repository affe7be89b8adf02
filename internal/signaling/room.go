package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field names a writable part of the room document.
type Field string

const (
	FieldOffer            Field = "offer"
	FieldAnswer           Field = "answer"
	FieldCallerCandidates Field = "callerCandidates"
	FieldCalleeCandidates Field = "calleeCandidates"
)

// IsDescription reports whether f holds a session description.
func (f Field) IsDescription() bool {
	return f == FieldOffer || f == FieldAnswer
}

// IsCandidates reports whether f holds a candidate list.
func (f Field) IsCandidates() bool {
	return f == FieldCallerCandidates || f == FieldCalleeCandidates
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// Candidate is the JSON form of an ICE candidate as produced by the
// transport. The nullable fields mirror the browser's RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid" msgpack:"sdpMid"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex" msgpack:"sdpMLineIndex"`
	UsernameFragment *string `json:"usernameFragment" msgpack:"usernameFragment"`
}

// Key returns the canonical serialization of c. Two candidates with equal
// keys are the same candidate.
func (c Candidate) Key() string {
	b, err := json.Marshal(c)
	if err != nil {
		// Only strings and integers; cannot fail.
		return c.Candidate
	}
	return string(b)
}

// Room is the shared signaling document for one session.
type Room struct {
	Created          int64               `json:"created" msgpack:"created"`
	Offer            *SessionDescription `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer           *SessionDescription `json:"answer,omitempty" msgpack:"answer,omitempty"`
	CallerCandidates []Candidate         `json:"callerCandidates" msgpack:"callerCandidates"`
	CalleeCandidates []Candidate         `json:"calleeCandidates" msgpack:"calleeCandidates"`
}

// NewRoom returns an empty room created at t.
func NewRoom(t time.Time) *Room {
	return &Room{
		Created:          t.UnixMilli(),
		CallerCandidates: []Candidate{},
		CalleeCandidates: []Candidate{},
	}
}

// Description returns the offer or answer, or nil if not yet written.
func (r *Room) Description(f Field) *SessionDescription {
	switch f {
	case FieldOffer:
		return r.Offer
	case FieldAnswer:
		return r.Answer
	}
	return nil
}

// Candidates returns the candidate list stored under f.
func (r *Room) Candidates(f Field) []Candidate {
	switch f {
	case FieldCallerCandidates:
		return r.CallerCandidates
	case FieldCalleeCandidates:
		return r.CalleeCandidates
	}
	return nil
}

// SetDescription writes the offer or answer. Each may be written once:
// rewriting the same value is a no-op, a different value is ErrFieldExists.
// changed reports whether the document was modified.
func (r *Room) SetDescription(f Field, d SessionDescription) (changed bool, err error) {
	var slot **SessionDescription
	switch f {
	case FieldOffer:
		slot = &r.Offer
	case FieldAnswer:
		slot = &r.Answer
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidField, f)
	}

	if *slot != nil {
		if **slot == d {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", ErrFieldExists, f)
	}
	*slot = &d
	return true, nil
}

// AppendCandidate adds c to the list under f unless an identical
// candidate is already there.
func (r *Room) AppendCandidate(f Field, c Candidate) (changed bool, err error) {
	var list *[]Candidate
	switch f {
	case FieldCallerCandidates:
		list = &r.CallerCandidates
	case FieldCalleeCandidates:
		list = &r.CalleeCandidates
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidField, f)
	}

	key := c.Key()
	for _, existing := range *list {
		if existing.Key() == key {
			return false, nil
		}
	}
	*list = append(*list, c)
	return true, nil
}

// Clone returns a deep copy that shares nothing with r.
func (r *Room) Clone() Room {
	out := Room{
		Created:          r.Created,
		CallerCandidates: append([]Candidate{}, r.CallerCandidates...),
		CalleeCandidates: append([]Candidate{}, r.CalleeCandidates...),
	}
	if r.Offer != nil {
		offer := *r.Offer
		out.Offer = &offer
	}
	if r.Answer != nil {
		answer := *r.Answer
		out.Answer = &answer
	}
	return out
}
