// Package window implements the sliding sequence/ack window: wrap-aware
// partial-sequence reconstruction, the shifting ack-mask bit vector, and the
// per-sequence notification walk that turns a peer's reported highest-ack
// and ack bitmap into an ordered stream of delivered/dropped notifications.
//
// Every function here is a pure operation on *State — no I/O, no locking.
// The surrounding conn package is the imperative shell that calls these in
// response to wire events.
package window

// Window constants, fixed by the wire format (spec.md §3/§4.7).
const (
	WindowSizeShift = 5
	Window          = 1 << WindowSizeShift // 32
	WindowMask      = Window - 1
	AckMaskWords    = Window / 32 // 1
	MaxAckBytes     = AckMaskWords << 2

	SeqBits       = 11
	SeqWindowSize = 1 << SeqBits
	seqMask       = ^uint32(SeqWindowSize - 1)

	AckSeqBits       = 10
	AckSeqWindowSize = 1 << AckSeqBits
	ackSeqMask       = ^uint32(AckSeqWindowSize - 1)
)

// State is the sequence/window state table from spec.md §3.
type State struct {
	InitialSendSeq  uint32
	LastSendSeq     uint32
	HighestAckedSeq uint32

	InitialRecvSeq uint32
	LastSeqRecvd   uint32

	// AckMask bit i of word 0 records receipt of sequence LastSeqRecvd-i,
	// set iff that sequence arrived as a data packet.
	AckMask [AckMaskWords]uint32

	LastRecvAckAck uint32

	// LastSeqRecvdAtSend[k] snapshots LastSeqRecvd at the moment the data
	// packet with sequence (k mod Window) was sent; used to advance
	// LastRecvAckAck when that packet is later confirmed delivered.
	LastSeqRecvdAtSend [Window]uint32
}

// New initializes window state for a freshly created connection, given a
// random initial send sequence chosen by the caller's RNG.
func New(initialSendSeq uint32) *State {
	return &State{
		InitialSendSeq:  initialSendSeq,
		LastSendSeq:     initialSendSeq,
		HighestAckedSeq: initialSendSeq,
	}
}

// SetInitialRecvSequence records the peer's initial send sequence, learned
// at handshake completion.
func (s *State) SetInitialRecvSequence(seq uint32) {
	s.InitialRecvSeq = seq
	s.LastSeqRecvd = seq
	s.LastRecvAckAck = seq
}

// WindowFull reports whether the send window is exhausted: no more data
// packets may be sent until the peer acks or nacks an outstanding one
// (spec.md §3 invariant, §4.9).
func (s *State) WindowFull() bool {
	return s.LastSendSeq-s.HighestAckedSeq >= Window-2
}

// ReconstructSeq recovers the full sequence number from the truncated
// SeqBits-wide wire value, using the high bits of LastSeqRecvd, and reports
// whether it falls within the receive window. A false return means the
// caller must silently drop the packet (spec.md §4.3, §7 out_of_window_seq).
func (s *State) ReconstructSeq(truncated uint32) (seq uint32, ok bool) {
	seq = truncated | (s.LastSeqRecvd & seqMask)
	if seq < s.LastSeqRecvd {
		seq += SeqWindowSize
	}
	if seq-s.LastSeqRecvd > Window-1 {
		return 0, false
	}
	return seq, true
}

// ReconstructAck recovers the full peer-highest-ack value from the
// truncated AckSeqBits-wide wire value, and reports whether it falls within
// the send window (spec.md §4.3, §7 out_of_window_ack).
func (s *State) ReconstructAck(truncated uint32) (ack uint32, ok bool) {
	ack = truncated | (s.HighestAckedSeq & ackSeqMask)
	if ack < s.HighestAckedSeq {
		ack += AckSeqWindowSize
	}
	if ack > s.LastSendSeq {
		return 0, false
	}
	return ack, true
}

// ShiftAckMask records receipt of `seq` (shift = seq - LastSeqRecvd slots
// ahead of the current high bit) into the ack mask, nacking every sequence
// in between and acking seq itself iff dataPacket is true (spec.md §4.4).
// It does not update LastSeqRecvd; the caller does that after notification
// dispatch, matching connection.h's ordering.
func (s *State) ShiftAckMask(shift uint32, dataPacket bool) {
	for shift > 32 {
		for i := AckMaskWords - 1; i > 0; i-- {
			s.AckMask[i] = s.AckMask[i-1]
		}
		s.AckMask[0] = 0
		shift -= 32
	}

	upShifted := uint32(0)
	if dataPacket {
		upShifted = 1
	}
	for i := 0; i < AckMaskWords; i++ {
		nextShift := s.AckMask[i] >> (32 - shift)
		s.AckMask[i] = (s.AckMask[i] << shift) | upShifted
		upShifted = nextShift
	}
}

// Notification is an upward notify(sequence, delivered) event (spec.md
// §4.5).
type Notification struct {
	Sequence  uint32
	Delivered bool
}

// Notify processes the peer's reported highest-ack (already reconstructed
// by ReconstructAck) and ack bitmap, emitting one Notification per sequence
// in (HighestAckedSeq, pkHighestAck], in strictly increasing order, and
// advancing LastRecvAckAck as delivered notifications are found. It then
// applies the post-loop clamp and commits HighestAckedSeq, matching
// connection.h:480-510 line for line. It does not advance LastSeqRecvd —
// the caller commits that only after this returns, per spec.md §4.5's
// final two steps.
func (s *State) Notify(pkSeq, pkHighestAck uint32, peerAckMask [AckMaskWords]uint32) []Notification {
	notifyCount := pkHighestAck - s.HighestAckedSeq
	notes := make([]Notification, 0, notifyCount)

	for i := uint32(0); i < notifyCount; i++ {
		notifyIndex := s.HighestAckedSeq + i + 1

		bitOffset := pkHighestAck - notifyIndex
		word := bitOffset >> 5
		bit := bitOffset & 31

		delivered := peerAckMask[word]&(1<<bit) != 0
		notes = append(notes, Notification{Sequence: notifyIndex, Delivered: delivered})

		if delivered {
			s.LastRecvAckAck = s.LastSeqRecvdAtSend[notifyIndex&WindowMask]
		}
	}

	if pkSeq-s.LastRecvAckAck > Window {
		s.LastRecvAckAck = pkSeq - Window
	}
	s.HighestAckedSeq = pkHighestAck

	return notes
}

// AckByteCount computes the number of ack-mask bytes that must be
// transmitted to cover every sequence the peer hasn't yet confirmed we told
// it about, clamped to MaxAckBytes (spec.md §4.7).
func (s *State) AckByteCount() uint32 {
	count := (s.LastSeqRecvd - s.LastRecvAckAck + 7) / 8
	if count > MaxAckBytes {
		count = MaxAckBytes
	}
	return count
}
