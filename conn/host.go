package conn

import (
	"math/rand"
	"net"
	"time"
)

// DisconnectReason classifies why a connection was torn down.
type DisconnectReason int

const (
	ReasonSelfDisconnect DisconnectReason = iota
	ReasonTimedOut
	ReasonPeerDisconnect
)

// Host is the small capability interface the owning host collaborator
// supplies to a Connection (Design Notes §9: "an explicit small interface
// the host supplies to the connection"). The host is otherwise outside the
// core's scope per spec.md §1 — the socket, the pending-connection
// handshake flow, the RNG, and the event queue all live on the other side
// of this interface.
type Host interface {
	SendTo(addr net.Addr, data []byte) error
	SendToDelayed(addr net.Addr, data []byte, delay time.Duration)
	ProcessStartTime() time.Time
	Random() *rand.Rand
	StartConnection(c *Connection)
	StartArrangedConnection(c *Connection)
	Disconnect(c *Connection, reason DisconnectReason, buf []byte)
	PostEvent(ev Event, c *Connection)
}

// Event is the closed set of upward notifications the core posts through
// Host.PostEvent (spec.md §6).
type Event interface{ isEvent() }

type EstablishedEvent struct{}

type PacketEvent struct {
	Sequence uint32
	Data     []byte
}

type NotifyEvent struct {
	Sequence  uint32
	Delivered bool
}

type DisconnectedEvent struct {
	Data []byte
}

type TimedOutEvent struct {
	Data []byte
}

func (EstablishedEvent) isEvent()  {}
func (PacketEvent) isEvent()       {}
func (NotifyEvent) isEvent()       {}
func (DisconnectedEvent) isEvent() {}
func (TimedOutEvent) isEvent()     {}

// DropReason classifies a silently-dropped packet for structured logging
// only (spec.md §7 — the drop itself never surfaces as an Event).
type DropReason int

const (
	DropMalformedHeader DropReason = iota
	DropOutOfWindowSeq
	DropOutOfWindowAck
	DropCryptoRejected
	DropAckByteCountOversize
)

func (r DropReason) String() string {
	switch r {
	case DropMalformedHeader:
		return "malformed_header"
	case DropOutOfWindowSeq:
		return "out_of_window_seq"
	case DropOutOfWindowAck:
		return "out_of_window_ack"
	case DropCryptoRejected:
		return "crypto_rejected"
	case DropAckByteCountOversize:
		return "ack_byte_count_oversize"
	default:
		return "unknown"
	}
}
