package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioA_SequentialAck mirrors spec.md §8 boundary A: ten data
// packets sent, all acked in order with a full bitmap, expect ten
// notify(delivered=true) events in order and HighestAckedSeq advancing to
// the reported value.
func TestScenarioA_SequentialAck(t *testing.T) {
	s := New(100)
	s.LastSendSeq = 110
	for seq := uint32(101); seq <= 110; seq++ {
		s.LastSeqRecvdAtSend[seq&WindowMask] = 0
	}

	notes := s.Notify(200, 110, [AckMaskWords]uint32{0x3FF})

	require.Len(t, notes, 10)
	for i, n := range notes {
		assert.Equal(t, uint32(101+i), n.Sequence)
		assert.True(t, n.Delivered, "sequence %d", n.Sequence)
	}
	assert.Equal(t, uint32(110), s.HighestAckedSeq)
}

// TestScenarioB_GapThenRecovery mirrors boundary B: peer received only 103
// and 105 out of 101..105.
func TestScenarioB_GapThenRecovery(t *testing.T) {
	s := New(100)
	s.LastSendSeq = 105

	// bit 0 (105) and bit 2 (103) set.
	mask := uint32(1<<0 | 1<<2)
	notes := s.Notify(200, 105, [AckMaskWords]uint32{mask})

	want := []Notification{
		{101, false}, {102, false}, {103, true}, {104, false}, {105, true},
	}
	assert.Equal(t, want, notes)
}

// TestScenarioC_SequenceWrap mirrors boundary C: LastSeqRecvd sits at the
// top of the SeqBits range, and the peer's truncated sequence wraps to 0,
// reconstructing to SeqWindowSize and landing inside the window.
func TestScenarioC_SequenceWrap(t *testing.T) {
	s := New(0)
	s.LastSeqRecvd = SeqWindowSize - 1

	seq, ok := s.ReconstructSeq(0)
	require.True(t, ok)
	assert.Equal(t, uint32(SeqWindowSize), seq)

	shift := seq - s.LastSeqRecvd
	assert.Equal(t, uint32(1), shift)
	s.ShiftAckMask(shift, true)
	assert.Equal(t, uint32(1), s.AckMask[0]&1)
}

// TestScenarioD_OutOfWindowDrop mirrors boundary D: a truncated sequence
// that reconstructs far beyond the window must be rejected, and the caller
// must leave state untouched.
func TestScenarioD_OutOfWindowDrop(t *testing.T) {
	s := New(0)
	s.LastSeqRecvd = 50

	// Peer's truncated sequence reconstructs to 100, 50 past LastSeqRecvd —
	// beyond Window-1 (31), so it must be rejected and state left alone.
	truncated := uint32(100) & (SeqWindowSize - 1)
	_, ok := s.ReconstructSeq(truncated)
	assert.False(t, ok)
	assert.Equal(t, uint32(50), s.LastSeqRecvd, "rejected packet must not mutate state")
}

// TestReconstructAckOutOfWindow mirrors the ack-side equivalent of boundary
// D (out_of_window_ack, spec.md §7).
func TestReconstructAckOutOfWindow(t *testing.T) {
	s := New(0)
	s.LastSendSeq = 50
	s.HighestAckedSeq = 50

	truncated := uint32(50 + Window) & (AckSeqWindowSize - 1)
	_, ok := s.ReconstructAck(truncated)
	assert.False(t, ok)
}

// TestWindowFullInvariant checks spec.md §3/§8 invariant 4:
// LastSendSeq - HighestAckedSeq <= Window-2 must hold at every successful
// send, and WindowFull must report true exactly when a send would violate
// it.
func TestWindowFullInvariant(t *testing.T) {
	s := New(0)
	s.HighestAckedSeq = 0
	s.LastSendSeq = Window - 3
	assert.False(t, s.WindowFull())

	s.LastSendSeq = Window - 2
	assert.True(t, s.WindowFull())
}

// TestNotifyOrderingAndNoDuplicate checks invariants 1 and 2: notifications
// come out strictly increasing and each sequence appears exactly once
// across successive Notify calls as HighestAckedSeq advances.
func TestNotifyOrderingAndNoDuplicate(t *testing.T) {
	s := New(0)
	s.LastSendSeq = 20

	first := s.Notify(30, 5, [AckMaskWords]uint32{0x1F})
	require.Len(t, first, 5)

	second := s.Notify(30, 10, [AckMaskWords]uint32{0x1F})
	require.Len(t, second, 5)

	seen := map[uint32]bool{}
	last := uint32(0)
	for _, n := range append(first, second...) {
		assert.False(t, seen[n.Sequence], "duplicate notify for %d", n.Sequence)
		seen[n.Sequence] = true
		assert.Greater(t, n.Sequence, last)
		last = n.Sequence
	}
}

// TestAckByteCountClampsToMax verifies the ranged ack-byte-count encoding
// never exceeds MaxAckBytes (spec.md §4.7).
func TestAckByteCountClampsToMax(t *testing.T) {
	s := New(0)
	s.LastSeqRecvd = 1000
	s.LastRecvAckAck = 0
	assert.Equal(t, uint32(MaxAckBytes), s.AckByteCount())
}

func TestHighestAckedMonotonic(t *testing.T) {
	s := New(0)
	s.LastSendSeq = 50
	s.Notify(10, 10, [AckMaskWords]uint32{0})
	assert.Equal(t, uint32(10), s.HighestAckedSeq)
	s.Notify(20, 20, [AckMaskWords]uint32{0})
	assert.GreaterOrEqual(t, s.HighestAckedSeq, uint32(10))
}
