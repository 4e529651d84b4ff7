package wire

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	structpb "google.golang.org/protobuf/types/known/structpb"

	"sanders/internal/mutex"
)

// ErrMalformed is returned for envelopes that cannot be decoded.
var ErrMalformed = errors.New("malformed envelope")

const (
	fieldID        = "id"
	fieldFrom      = "from"
	fieldKind      = "kind"
	fieldTimestamp = "timestamp"
)

// Envelope is a decoded inbound message. ID is unique per message and is
// reused when the sender retries it.
type Envelope struct {
	ID   string
	From mutex.ID
	Msg  mutex.Message
}

// Encode wraps msg from the given sender into a struct envelope with a fresh id.
func Encode(from mutex.ID, msg mutex.Message) (*structpb.Struct, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: %w", mutex.ErrUnknownMessage)
	}
	fields := map[string]any{
		fieldID:   uuid.NewString(),
		fieldFrom: string(from),
		fieldKind: msg.Kind().String(),
	}
	switch msg.Kind() {
	case mutex.KindRequest, mutex.KindInquire:
		fields[fieldTimestamp] = float64(mutex.Timestamp(msg))
	case mutex.KindYes, mutex.KindRelinquish, mutex.KindRelease:
	default:
		return nil, fmt.Errorf("encode %T: %w", msg, mutex.ErrUnknownMessage)
	}
	return structpb.NewStruct(fields)
}

// Decode unwraps a struct envelope.
func Decode(s *structpb.Struct) (Envelope, error) {
	if s == nil {
		return Envelope{}, fmt.Errorf("%w: nil payload", ErrMalformed)
	}
	f := s.GetFields()

	from := f[fieldFrom].GetStringValue()
	if from == "" {
		return Envelope{}, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	id := f[fieldID].GetStringValue()
	if id == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	env := Envelope{
		ID:   id,
		From: mutex.ID(from),
	}

	kind := f[fieldKind].GetStringValue()
	switch kind {
	case mutex.KindRequest.String():
		ts, err := timestamp(f)
		if err != nil {
			return Envelope{}, err
		}
		env.Msg = mutex.RequestMsg{Timestamp: ts}
	case mutex.KindInquire.String():
		ts, err := timestamp(f)
		if err != nil {
			return Envelope{}, err
		}
		env.Msg = mutex.InquireMsg{Timestamp: ts}
	case mutex.KindYes.String():
		env.Msg = mutex.YesMsg{}
	case mutex.KindRelinquish.String():
		env.Msg = mutex.RelinquishMsg{}
	case mutex.KindRelease.String():
		env.Msg = mutex.ReleaseMsg{}
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
	return env, nil
}

func timestamp(f map[string]*structpb.Value) (int64, error) {
	v, ok := f[fieldTimestamp]
	if !ok {
		return 0, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("%w: timestamp is not a number", ErrMalformed)
	}
	n := v.GetNumberValue()
	if n != float64(int64(n)) {
		return 0, fmt.Errorf("%w: timestamp %v is not an integer", ErrMalformed, n)
	}
	return int64(n), nil
}

// Status is a node's externally visible protocol state.
type Status struct {
	Node              string
	Round             int64
	InCriticalSection bool
	AwaitingEntry     bool
	Pending           int
	Admissions        uint64
	Stale             uint64
	Duplicates        uint64
}

// EncodeStatus converts a Status to a struct.
func EncodeStatus(st Status) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"node":       st.Node,
		"round":      float64(st.Round),
		"in_cs":      st.InCriticalSection,
		"awaiting":   st.AwaitingEntry,
		"pending":    float64(st.Pending),
		"admissions": float64(st.Admissions),
		"stale":      float64(st.Stale),
		"duplicates": float64(st.Duplicates),
	})
}

// DecodeStatus converts a struct back to a Status.
func DecodeStatus(s *structpb.Struct) Status {
	f := s.GetFields()
	return Status{
		Node:              f["node"].GetStringValue(),
		Round:             int64(f["round"].GetNumberValue()),
		InCriticalSection: f["in_cs"].GetBoolValue(),
		AwaitingEntry:     f["awaiting"].GetBoolValue(),
		Pending:           int(f["pending"].GetNumberValue()),
		Admissions:        uint64(f["admissions"].GetNumberValue()),
		Stale:             uint64(f["stale"].GetNumberValue()),
		Duplicates:        uint64(f["duplicates"].GetNumberValue()),
	}
}
