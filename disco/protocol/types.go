package protocol

type MessageType uint8

const (
	MessageTypeHello          MessageType = 1
	MessageTypeHandshake      MessageType = 2
	MessageTypeData           MessageType = 3
	MessageTypeDataCompressed MessageType = 4
	MessageTypeTicket         MessageType = 5
	MessageTypeClose          MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "HELLO"
	case MessageTypeHandshake:
		return "HANDSHAKE"
	case MessageTypeData:
		return "DATA"
	case MessageTypeDataCompressed:
		return "DATA_LZ4"
	case MessageTypeTicket:
		return "TICKET"
	case MessageTypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}
