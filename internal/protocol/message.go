package protocol

const (
	// CommandJoin registers the sender and is answered with a JOIN broadcast.
	CommandJoin = "JOIN"
	// CommandQuit deregisters the session whose id is carried negated.
	CommandQuit = "QUIT"
)

// Kind classifies an inbound frame.
type Kind int

const (
	// KindNormal is a chat message relayed to every session except the sender.
	KindNormal Kind = iota
	// KindJoin requests a new session.
	KindJoin
	// KindQuit releases an existing session.
	KindQuit
)

// String returns the lower-case kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindQuit:
		return "quit"
	default:
		return "normal"
	}
}

// Message is a classified inbound frame.
type Message struct {
	Kind Kind
	// SessionID is the session the message refers to: zero for joins, the
	// positive id being released for quits, and the raw id for normal messages.
	SessionID int32
	Frame     Frame
}

// Classify derives the message kind from the frame's first field and the
// sign of its id.
//
// A frame whose first field is QUIT but whose id is zero or positive is
// classified as KindNormal and relayed to the other sessions.
//
// Postcondition: Returns exactly one classification for any frame.
func Classify(f Frame) Message {
	switch {
	case f.Field1 == CommandJoin:
		return Message{Kind: KindJoin, Frame: f}
	case f.Field1 == CommandQuit && f.ID < 0:
		return Message{Kind: KindQuit, SessionID: abs(f.ID), Frame: f}
	default:
		return Message{Kind: KindNormal, SessionID: f.ID, Frame: f}
	}
}

// abs negates id; math.MinInt32 stays negative and so never names a session.
func abs(id int32) int32 {
	if id < 0 {
		return -id
	}
	return id
}
