// Package conn implements the per-peer connection object: the sliding
// sequence/ack window, the notification protocol, the handshake-parameter
// carrier, the keep-alive timer, and the encryption binding, combined into
// the single state machine described in spec.md §1-§9.
package conn

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	tcipher "github.com/go-i2p/tnlconn/cipher"
	"github.com/go-i2p/tnlconn/params"
	"github.com/go-i2p/tnlconn/wire"
	"github.com/go-i2p/tnlconn/window"
)

// SendResult is the outcome of SendDataPacket.
type SendResult int

const (
	SendOK SendResult = iota
	SendWindowFull
)

// Connection is the core per-peer state machine (spec.md §3).
type Connection struct {
	host    Host
	cipher  *tcipher.AEAD
	params  *params.Parameters
	win     *window.State
	keepAlive *KeepAlive
	state   State
	addr    net.Addr

	lastPacketRecvTime time.Time

	// sendTimeAtSeq[k] records when the data packet with sequence k mod
	// Window was sent, used to compute RoundTripTime once that sequence is
	// acked (SPEC_FULL §12).
	sendTimeAtSeq        [window.Window]time.Time
	highestAckedSendTime time.Time
	roundTripTime        time.Duration

	closed bool
}

// New creates a connection bound to a host collaborator and a freshly
// chosen random initial send sequence.
func New(host Host, addr net.Addr, initialSendSeq uint32) *Connection {
	return &Connection{
		host:      host,
		params:    &params.Parameters{},
		win:       window.New(initialSendSeq),
		keepAlive: NewKeepAlive(),
		state:     StateNotConnected,
		addr:      addr,
	}
}

// Params returns the handshake parameter carrier, mutable by the handshake
// driver until the connection reaches StateConnected.
func (c *Connection) Params() *params.Parameters { return c.params }

// State returns the current lifecycle state.
func (c *Connection) State() State { return c.state }

// SetState transitions the connection to a new lifecycle state.
func (c *Connection) SetState(s State) {
	log.Debug().
		Stringer("from", c.state).
		Stringer("to", s).
		Msg("connection state transition")
	c.state = s
}

// SetSymmetricCipher installs the AEAD negotiated during the handshake.
// Once installed it is exclusively owned by the connection (Design Notes
// §9).
func (c *Connection) SetSymmetricCipher(a *tcipher.AEAD) { c.cipher = a }

// SetInitialRecvSequence records the peer's initial send sequence.
func (c *Connection) SetInitialRecvSequence(seq uint32) {
	c.win.SetInitialRecvSequence(seq)
}

// Address returns the peer's network address.
func (c *Connection) Address() net.Addr { return c.addr }

// LastSendSequence returns the sequence of the most recently sent data
// packet.
func (c *Connection) LastSendSequence() uint32 { return c.win.LastSendSeq }

// RoundTripTime returns the running-average round-trip time estimate
// (SPEC_FULL §12, observational only — nothing downstream acts on it).
func (c *Connection) RoundTripTime() time.Duration { return c.roundTripTime }

// KeepAlive returns the connection's keep-alive timer, so a configuration
// loader can override its defaults (spec.md §4.8) before the connection
// starts exchanging traffic.
func (c *Connection) KeepAlive() *KeepAlive { return c.keepAlive }

// windowFull reports whether the send window is exhausted.
func (c *Connection) windowFull() bool { return c.win.WindowFull() }

// SendDataPacket writes and sends a data packet carrying payload, assigning
// it the next sequence number. It refuses with SendWindowFull (no side
// effects) when the window is exhausted (spec.md §4.9).
func (c *Connection) SendDataPacket(payload []byte) (SendResult, uint32, error) {
	if c.state != StateConnected {
		return SendWindowFull, 0, fmt.Errorf("conn: data packets require StateConnected, have %s", c.state)
	}
	if c.windowFull() {
		return SendWindowFull, 0, nil
	}

	stream, err := c.writeRawPacket(DataPacket, payload)
	if err != nil {
		return SendWindowFull, 0, err
	}

	seq := c.win.LastSendSeq
	c.sendTimeAtSeq[seq&window.WindowMask] = c.host.ProcessStartTime()

	if err := c.host.SendTo(c.addr, stream); err != nil {
		return SendWindowFull, seq, err
	}
	return SendOK, seq, nil
}

func (c *Connection) sendPing() error {
	stream, err := c.writeRawPacket(PingPacket, nil)
	if err != nil {
		return err
	}
	return c.host.SendTo(c.addr, stream)
}

func (c *Connection) sendAck() error {
	stream, err := c.writeRawPacket(AckPacket, nil)
	if err != nil {
		return err
	}
	return c.host.SendTo(c.addr, stream)
}

// writeRawPacket writes the full packet (header, ack mask, send-delay hint,
// payload) and, if a cipher is installed, encrypts and signs everything
// after the cleartext header (spec.md §4.2, §4.7).
func (c *Connection) writeRawPacket(packetType PacketType, payload []byte) ([]byte, error) {
	w := wire.NewWriter(HeaderByteSize + window.MaxAckBytes + 1 + len(payload) + tcipher.SignatureBytes)

	writeHeader(w, c.win, packetType)

	ackByteCount := c.win.AckByteCount()
	w.WriteRangedUint32(ackByteCount, 0, window.MaxAckBytes)
	writeAckMaskWords(w, c.win.AckMask, ackByteCount)

	sendDelay := uint32(0)
	if !c.lastPacketRecvTime.IsZero() {
		delayMs := int64(c.host.ProcessStartTime().Sub(c.lastPacketRecvTime) / time.Millisecond)
		if delayMs > maxSendDelay {
			delayMs = maxSendDelay
		}
		sendDelay = uint32(delayMs)
	}
	w.WriteInteger(sendDelay, sendDelayBits)

	if packetType == DataPacket {
		w.PadToByte()
		for _, b := range payload {
			w.WriteInteger(uint32(b), 8)
		}
	}

	buf := w.Bytes()
	if c.cipher == nil {
		return buf, nil
	}
	sealed, err := c.cipher.SealInPlace(buf, HeaderByteSize, c.win.LastSendSeq, c.win.LastSeqRecvd, uint32(packetType))
	if err != nil {
		return nil, fmt.Errorf("conn: seal packet: %w", err)
	}
	return sealed, nil
}

// writeAckMaskWords writes ackByteCount bytes' worth of ack-mask words: full
// 32-bit words except the last, which is truncated to the remaining byte
// count (spec.md §4.7 step 8).
func writeAckMaskWords(w *wire.Writer, mask [window.AckMaskWords]uint32, ackByteCount uint32) {
	wordCount := (ackByteCount + 3) / 4
	for i := uint32(0); i < wordCount; i++ {
		bits := 32
		if i == wordCount-1 {
			bits = int(ackByteCount-i*4) * 8
		}
		w.WriteInteger(mask[i], bits)
	}
}

func readAckMaskWords(r *wire.Reader, ackByteCount uint32) [window.AckMaskWords]uint32 {
	var mask [window.AckMaskWords]uint32
	wordCount := (ackByteCount + 3) / 4
	for i := uint32(0); i < wordCount && i < window.AckMaskWords; i++ {
		bits := 32
		if i == wordCount-1 {
			bits = int(ackByteCount-i*4) * 8
		}
		mask[i] = r.ReadInteger(bits)
	}
	return mask
}

// ReadRawPacket processes one inbound datagram: header parse, decrypt and
// verify, sequence reconstruction, ack-mask update, notification dispatch,
// and — for data packets — delivers the payload upward as a PacketEvent.
// Every wire-derived error is a silent local drop (spec.md §7); state is
// mutated only on full success.
func (c *Connection) ReadRawPacket(data []byte) {
	r := wire.NewReader(data)
	hdr, ok, reason := readHeader(r, c.win)
	if !ok {
		log.Debug().Stringer("reason", reason).Msg("dropping packet")
		return
	}
	if hdr.packetType == DataPacket && c.state != StateConnected {
		log.Debug().Stringer("state", c.state).Msg("dropping data packet outside StateConnected")
		return
	}

	var body []byte
	if c.cipher != nil {
		opened, err := c.cipher.OpenInPlace(append([]byte(nil), data...), HeaderByteSize, hdr.seq, hdr.highestAck, uint32(hdr.packetType))
		if err != nil {
			log.Debug().Stringer("reason", DropCryptoRejected).Msg("dropping packet")
			return
		}
		body = opened[HeaderByteSize:]
	} else {
		body = r.Remaining()
	}

	br := wire.NewReader(body)
	ackByteCount := br.ReadRangedUint32(0, window.MaxAckBytes)
	if ackByteCount > window.MaxAckBytes {
		log.Debug().Stringer("reason", DropAckByteCountOversize).Msg("dropping packet")
		return
	}
	peerAckMask := readAckMaskWords(br, ackByteCount)
	peerSendDelay := time.Duration(br.ReadInteger(sendDelayBits)) * time.Millisecond
	if hdr.packetType == DataPacket {
		br.PadToByte()
	}

	c.lastPacketRecvTime = c.host.ProcessStartTime()

	shift := hdr.seq - c.win.LastSeqRecvd
	c.win.ShiftAckMask(shift, hdr.packetType == DataPacket)

	notes := c.win.Notify(hdr.seq, hdr.highestAck, peerAckMask)
	for _, n := range notes {
		if n.Delivered {
			c.highestAckedSendTime = c.sendTimeAtSeq[n.Sequence&window.WindowMask]
			if !c.highestAckedSendTime.IsZero() {
				delta := c.host.ProcessStartTime().Sub(c.highestAckedSendTime) - peerSendDelay
				c.roundTripTime = time.Duration(float64(c.roundTripTime)*0.9 + float64(delta)*0.1)
				if c.roundTripTime < 0 {
					c.roundTripTime = 0
				}
			}
		}
		c.host.PostEvent(NotifyEvent{Sequence: n.Sequence, Delivered: n.Delivered}, c)
	}

	c.keepAlive.Reset(c.host.ProcessStartTime())

	prevLastSeqRecvd := c.win.LastSeqRecvd
	c.win.LastSeqRecvd = hdr.seq

	if hdr.packetType == PingPacket || hdr.seq-c.win.LastRecvAckAck > window.Window/2 {
		if err := c.sendAck(); err != nil {
			log.Warn().Err(err).Msg("failed to send piggybacked ack")
		}
	}

	if hdr.packetType == DataPacket && prevLastSeqRecvd != hdr.seq {
		payload := append([]byte(nil), br.Remaining()...)
		c.host.PostEvent(PacketEvent{Sequence: hdr.seq, Data: payload}, c)
	}
}

// CheckTimeout drives the keep-alive timer; it sends a ping if the
// connection has been idle past PingTimeout. Once the retry budget is
// exhausted it sets StateTimedOut, posts a TimedOutEvent and reports true;
// disconnecting is left to the caller (spec.md §4.8).
func (c *Connection) CheckTimeout(now time.Time) bool {
	timedOut, shouldPing := c.keepAlive.CheckTimeout(now)
	if timedOut {
		c.SetState(StateTimedOut)
		c.host.PostEvent(TimedOutEvent{}, c)
		return true
	}
	if shouldPing {
		if err := c.sendPing(); err != nil {
			log.Warn().Err(err).Msg("failed to send ping")
		}
	}
	return false
}

// Disconnect tears down the connection locally and notifies the host.
func (c *Connection) Disconnect(reason DisconnectReason, buf []byte) {
	if c.closed {
		return
	}
	c.closed = true
	c.SetState(StateDisconnected)
	c.host.PostEvent(DisconnectedEvent{Data: buf}, c)
	c.host.Disconnect(c, reason, buf)
}
