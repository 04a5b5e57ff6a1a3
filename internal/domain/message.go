package domain

// MessageKind tags the variant held by a Message.
type MessageKind uint8

const (
	KindText MessageKind = iota + 1
	KindBinary
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is the unit of fan-out: either Text or Binary, immutable once built.
// Copies share the underlying bytes, so fanning out to N recipients never
// reallocates the payload.
type Message struct {
	kind MessageKind
	text string
	data []byte
}

// TextMessage builds a Text message.
func TextMessage(s string) Message {
	return Message{kind: KindText, text: s}
}

// BinaryMessage builds a Binary message. The message takes ownership of b;
// callers must not modify it afterwards.
func BinaryMessage(b []byte) Message {
	return Message{kind: KindBinary, data: b}
}

func (m Message) Kind() MessageKind { return m.kind }

func (m Message) IsText() bool { return m.kind == KindText }

// Text returns the text payload, or "" for Binary messages.
func (m Message) Text() string { return m.text }

// Bytes returns the payload as bytes. For Binary messages the slice is shared
// and must be treated as read-only.
func (m Message) Bytes() []byte {
	if m.kind == KindText {
		return []byte(m.text)
	}
	return m.data
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	if m.kind == KindText {
		return len(m.text)
	}
	return len(m.data)
}
