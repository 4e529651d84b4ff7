package mutex

// Kind names a protocol message type.
type Kind int

const (
	KindRequest Kind = iota
	KindYes
	KindInquire
	KindRelinquish
	KindRelease
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindYes:
		return "YES"
	case KindInquire:
		return "INQUIRE"
	case KindRelinquish:
		return "RELINQUISH"
	case KindRelease:
		return "RELEASE"
	default:
		return "UNKNOWN"
	}
}

// Message is one of Request, Yes, Inquire, Relinquish or Release. The set is
// closed: only this package can add variants.
type Message interface {
	Kind() Kind
	isMessage()
}

// RequestMsg asks the receiver for its vote.
type RequestMsg struct {
	Timestamp int64
}

// YesMsg grants the receiver the sender's vote.
type YesMsg struct{}

// InquireMsg asks the current candidate, whose bid carries Timestamp, to give
// the sender's vote back.
type InquireMsg struct {
	Timestamp int64
}

// RelinquishMsg returns a vote to the voter that inquired.
type RelinquishMsg struct{}

// ReleaseMsg tells voters the sender left its critical section.
type ReleaseMsg struct{}

func (RequestMsg) Kind() Kind    { return KindRequest }
func (YesMsg) Kind() Kind        { return KindYes }
func (InquireMsg) Kind() Kind    { return KindInquire }
func (RelinquishMsg) Kind() Kind { return KindRelinquish }
func (ReleaseMsg) Kind() Kind    { return KindRelease }

func (RequestMsg) isMessage()    {}
func (YesMsg) isMessage()        {}
func (InquireMsg) isMessage()    {}
func (RelinquishMsg) isMessage() {}
func (ReleaseMsg) isMessage()    {}

// Timestamp returns the round carried by msg, or 0 for kinds without one.
func Timestamp(msg Message) int64 {
	switch m := msg.(type) {
	case RequestMsg:
		return m.Timestamp
	case InquireMsg:
		return m.Timestamp
	default:
		return 0
	}
}
