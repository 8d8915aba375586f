package conn

import (
	"github.com/go-i2p/tnlconn/wire"
	"github.com/go-i2p/tnlconn/window"
)

// Header bit layout constants (spec.md §4.7). With SeqBits=11 and
// AckSeqBits=10 the cleartext prefix (2+5+1+6+10 = 24 bits) lands exactly on
// a byte boundary, so headerPadBits is zero — but the pad write/check stays
// in place because the wire format requires it regardless of how the
// constants happen to line up.
const (
	headerBitSize  = 3 + window.AckSeqBits + window.SeqBits
	HeaderByteSize = (headerBitSize + 7) / 8
	headerPadBits  = HeaderByteSize*8 - headerBitSize

	// sendDelayBits is the optional RTT-hint field added in SPEC_FULL §12,
	// written inside the encrypted region right after the ack-mask words.
	sendDelayBits = 8
	maxSendDelay  = (1 << sendDelayBits) - 1
)

// rawHeader is the parsed, reconstructed form of a wire header, produced by
// readHeader before decryption-dependent fields are known.
type rawHeader struct {
	packetType     PacketType
	seq            uint32
	highestAck     uint32
	headerByteSize int
}

// writeHeader writes the cleartext prefix (packet type, truncated send
// sequence, data-packet flag, truncated recv sequence, pad) exactly as
// spec.md §4.7 steps 1-6 describe. It increments win.LastSendSeq for data
// packets and records the send-time snapshot used later by window.Notify.
func writeHeader(w *wire.Writer, win *window.State, packetType PacketType) {
	if packetType == DataPacket {
		win.LastSendSeq++
	}

	w.WriteInteger(uint32(packetType), 2)
	w.WriteInteger(win.LastSendSeq, 5)
	w.WriteBool(true) // data-packet flag: always 1 for this protocol
	w.WriteInteger(win.LastSendSeq>>5, window.SeqBits-5)
	w.WriteInteger(win.LastSeqRecvd, window.AckSeqBits)
	w.WriteInteger(0, headerPadBits)

	if packetType == DataPacket {
		win.LastSeqRecvdAtSend[win.LastSendSeq&window.WindowMask] = win.LastSeqRecvd
	}
}

// readHeader parses the cleartext prefix and reconstructs the full sequence
// and ack values against win. ok is false for a malformed header (non-zero
// pad) or an out-of-window sequence/ack (spec.md §4.3, §7); reason
// distinguishes the two for logging.
func readHeader(r *wire.Reader, win *window.State) (hdr rawHeader, ok bool, reason DropReason) {
	pkType := r.ReadInteger(2)
	pkSeqLow := r.ReadInteger(5)
	dataFlag := r.ReadBool()
	pkSeqLow |= r.ReadInteger(window.SeqBits-5) << 5
	pkAckLow := r.ReadInteger(window.AckSeqBits)
	padClean := r.PadToByte()

	if !padClean || !dataFlag || pkType >= uint32(invalidPacketType) {
		return rawHeader{}, false, DropMalformedHeader
	}

	seq, seqOK := win.ReconstructSeq(pkSeqLow)
	if !seqOK {
		return rawHeader{}, false, DropOutOfWindowSeq
	}

	ack, ackOK := win.ReconstructAck(pkAckLow)
	if !ackOK {
		return rawHeader{}, false, DropOutOfWindowAck
	}

	return rawHeader{
		packetType:     PacketType(pkType),
		seq:            seq,
		highestAck:     ack,
		headerByteSize: HeaderByteSize,
	}, true, 0
}
