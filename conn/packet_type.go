package conn

// PacketType is the two-bit packet-type field carried in every header
// (spec.md §4.7).
type PacketType uint32

const (
	// DataPacket is a standard data packet. Sending one increments the
	// current send sequence (LastSendSeq).
	DataPacket PacketType = iota
	// PingPacket is sent when the peer hasn't been heard from in a while.
	// It does not increment the send sequence.
	PingPacket
	// AckPacket is sent to piggyback ack progress when there's no data to
	// send. It does not increment the send sequence.
	AckPacket
	invalidPacketType
)

func (t PacketType) String() string {
	switch t {
	case DataPacket:
		return "data_packet"
	case PingPacket:
		return "ping_packet"
	case AckPacket:
		return "ack_packet"
	default:
		return "invalid_packet_type"
	}
}
