package peerwire

// MessageID identifies a peer wire message type.
type MessageID byte

// Message ids, in protocol order.
const (
	Choke         MessageID = 0
	Unchoke       MessageID = 1
	Interested    MessageID = 2
	NotInterested MessageID = 3
	Have          MessageID = 4
	Bitfield      MessageID = 5
	Request       MessageID = 6
	Piece         MessageID = 7
	Cancel        MessageID = 8
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Message is a single decoded peer wire message. A zero-length message
// (keep-alive) has KeepAlive set and no payload; its ID is left at the
// zero value (the same as Choke), so callers check KeepAlive first.
type Message struct {
	ID MessageID

	// Have
	PieceIndex uint32

	// Bitfield
	Bitfield []byte

	// Request / Cancel
	Index, Begin, Length uint32

	// Piece
	Block []byte

	// KeepAlive is true for the zero-length keep-alive message; all
	// other fields are meaningless when set.
	KeepAlive bool
}

// fixedLength returns the expected body length (excluding the 1-byte
// id) for message ids with a fixed size, or -1 for variable-length ids
// (Bitfield, Piece) or unrecognized ids.
func fixedLength(id MessageID) int {
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		return 0
	case Have:
		return 4
	case Request, Cancel:
		return 12
	default:
		return -1
	}
}
