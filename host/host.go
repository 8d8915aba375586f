// Package host implements the host `Interface` collaborator the spec treats
// as external to the core: the real UDP socket, the per-peer connection
// table, the tick loop that drives keep-alive timeouts, and the simulated
// network hooks (packet loss / latency) used for testing the core without a
// lossy real network (spec.md §4.10).
//
// This is deliberately thin. Everything it does is drive conn.Connection
// through the conn.Host capability interface; it owns no protocol logic of
// its own, matching Design Notes §9's "explicit small interface the host
// supplies to the connection" split.
package host

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/rs/zerolog/log"

	"github.com/go-i2p/tnlconn/conn"
)

// eventLogSize bounds the per-connection recent-event ring buffer at
// window.Window slots worth of short log lines, replacing the teacher's
// per-stream circbuf.Buffer (message_status.go) with one sized for
// pending-notify/incoming-event history instead of I2CP message-status text.
const eventLogSize = 32 * 64

// EventHandler receives events posted by a Connection (spec.md §6). Handlers
// run on the host's single event-loop goroutine and must not block.
type EventHandler func(ev conn.Event, c *conn.Connection)

// Config configures simulated-network behavior and keep-alive driving for a
// Host (spec.md §4.10, §6 "Configuration").
type Config struct {
	SimulatedPacketLoss float64
	SimulatedLatency    time.Duration
	TickInterval        time.Duration
}

// DefaultConfig returns a Config with no simulated loss/latency and a tick
// interval fine enough to resolve conn.DefaultPingTimeout.
func DefaultConfig() Config {
	return Config{TickInterval: 250 * time.Millisecond}
}

// trackedConnection pairs a live Connection with its bounded recent-event
// log.
type trackedConnection struct {
	conn *conn.Connection
	log  *circbuf.Buffer
}

// Host owns a real UDP socket and every Connection bound to it. It is the
// sole publisher of conn.Connection objects (spec.md §5): connections are
// created by the handshake driver built on top of Host and registered via
// Add, never constructed directly by application code.
type Host struct {
	cfg     Config
	pconn   net.PacketConn
	handler EventHandler
	rng     *rand.Rand

	mu    sync.Mutex
	conns map[string]*trackedConnection

	startTime time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// New binds a Host to an already-open packet connection (typically a
// *net.UDPConn from net.ListenUDP). The caller owns pconn's lifetime.
func New(pconn net.PacketConn, cfg Config, handler EventHandler) *Host {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Host{
		cfg:       cfg,
		pconn:     pconn,
		handler:   handler,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:     make(map[string]*trackedConnection),
		startTime: time.Now(),
		closed:    make(chan struct{}),
	}
}

// Add registers a Connection so inbound datagrams from its peer address are
// routed to it, and so the tick loop drives its keep-alive timer.
func (h *Host) Add(c *conn.Connection) {
	buf, _ := circbuf.NewBuffer(int64(eventLogSize))
	h.mu.Lock()
	h.conns[c.Address().String()] = &trackedConnection{conn: c, log: buf}
	h.mu.Unlock()
}

// Remove drops a Connection from the routing table. Called by Disconnect
// and safe to call redundantly.
func (h *Host) Remove(c *conn.Connection) {
	h.mu.Lock()
	delete(h.conns, c.Address().String())
	h.mu.Unlock()
}

// Connections returns every currently-registered Connection, for the host
// application's tick/diagnostics loop.
func (h *Host) Connections() []*conn.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*conn.Connection, 0, len(h.conns))
	for _, tc := range h.conns {
		out = append(out, tc.conn)
	}
	return out
}

// EventLog returns the recent event history recorded for c, for debugging —
// one short line per posted event, oldest evicted first once the buffer
// fills (spec.md §11's circbuf replacement).
func (h *Host) EventLog(c *conn.Connection) string {
	h.mu.Lock()
	tc := h.conns[c.Address().String()]
	h.mu.Unlock()
	if tc == nil {
		return ""
	}
	return string(tc.log.Bytes())
}

// Run reads datagrams off the socket and dispatches them to the matching
// registered Connection until a read fails: it then returns nil if Close was
// called first, and the wrapped read error otherwise. It also applies the
// receive-side simulated packet loss draw (spec.md §4.10).
func (h *Host) Run() error {
	buf := make([]byte, 2048)
	for {
		n, addr, err := h.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-h.closed:
				return nil
			default:
				return fmt.Errorf("host: read: %w", err)
			}
		}

		if h.drawLoss() {
			log.Debug().Str("addr", addr.String()).Msg("simulated receive loss")
			continue
		}

		h.mu.Lock()
		tc := h.conns[addr.String()]
		h.mu.Unlock()
		if tc == nil {
			log.Debug().Str("addr", addr.String()).Msg("datagram from unregistered peer, dropping")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		tc.conn.ReadRawPacket(data)
	}
}

// RunTicker drives every registered Connection's keep-alive timer at
// cfg.TickInterval until Close is called. Run this in its own goroutine
// alongside Run.
func (h *Host) RunTicker() {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.closed:
			return
		case now := <-ticker.C:
			for _, c := range h.Connections() {
				if c.State() == conn.StateConnected {
					c.CheckTimeout(now)
				}
			}
		}
	}
}

// Close stops RunTicker and marks the host closed, so Run returns nil at its
// next read error. It does not close the underlying PacketConn, which the
// caller owns; Run stays blocked in ReadFrom until that PacketConn is closed.
func (h *Host) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

func (h *Host) drawLoss() bool {
	if h.cfg.SimulatedPacketLoss <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < h.cfg.SimulatedPacketLoss
}

// --- conn.Host implementation ---

// SendTo writes data to addr, applying the simulated send-side packet loss
// draw (spec.md §4.10 — the drop is silent; the caller's send sequence has
// already advanced by the time SendTo runs, modeling network loss rather
// than application back-pressure). When the host is configured with a
// simulated latency, the write is deferred through SendToDelayed instead of
// happening inline.
func (h *Host) SendTo(addr net.Addr, data []byte) error {
	if h.drawLoss() {
		log.Debug().Str("addr", addr.String()).Msg("simulated send loss")
		return nil
	}
	if h.cfg.SimulatedLatency > 0 {
		h.SendToDelayed(addr, data, h.cfg.SimulatedLatency)
		return nil
	}
	return h.writeNow(addr, data)
}

// SendToDelayed schedules data for delivery after delay, modeling simulated
// network latency (spec.md §4.10). The deferred write bypasses SendTo's own
// loss draw and latency check, since both were already applied by the
// caller before scheduling.
func (h *Host) SendToDelayed(addr net.Addr, data []byte, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := h.writeNow(addr, data); err != nil {
			log.Warn().Err(err).Msg("delayed send failed")
		}
	})
}

// writeNow puts data on the wire immediately, with no loss or latency
// simulation.
func (h *Host) writeNow(addr net.Addr, data []byte) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.New("host: SendTo requires a *net.UDPAddr")
	}
	_, err := h.pconn.WriteTo(data, udpAddr)
	return err
}

// ProcessStartTime returns the current wall-clock time; named to match
// spec.md §6's get_process_start_time, which the original uses as its only
// clock source for timeout math.
func (h *Host) ProcessStartTime() time.Time { return time.Now() }

// Random returns the host's non-cryptographic RNG, used for simulated-loss
// draws only (Design Notes: cryptographic unpredictability is reserved for
// the handshake nonce/puzzle path, not this loss simulator).
func (h *Host) Random() *rand.Rand { return h.rng }

// StartConnection begins the (out-of-core) handshake flow for a direct
// connection. The handshake state machine itself — challenge/puzzle
// negotiation — is an external collaborator per spec.md §1; a full
// implementation plugs in here. This host leaves it to the caller (e.g.
// cmd/tnlpeer) to drive Connection.SetState directly after negotiating
// parameters out of band.
func (h *Host) StartConnection(c *conn.Connection) {
	log.Info().Str("addr", c.Address().String()).Msg("starting connection")
	h.Add(c)
}

// StartArrangedConnection begins the handshake for a third-party-introduced
// connection; see StartConnection.
func (h *Host) StartArrangedConnection(c *conn.Connection) {
	log.Info().Str("addr", c.Address().String()).Msg("starting arranged connection")
	h.Add(c)
}

// Disconnect tears down the routing-table entry for c. reason and buf are
// logged but otherwise opaque to the host — interpreting them is an
// application concern.
func (h *Host) Disconnect(c *conn.Connection, reason conn.DisconnectReason, buf []byte) {
	log.Info().Str("addr", c.Address().String()).Int("reason", int(reason)).Msg("disconnecting")
	h.Remove(c)
}

// PostEvent appends a short summary of ev to c's bounded event log and, if
// an EventHandler was supplied, invokes it synchronously on the caller's
// goroutine (spec.md §6).
func (h *Host) PostEvent(ev conn.Event, c *conn.Connection) {
	h.mu.Lock()
	tc := h.conns[c.Address().String()]
	h.mu.Unlock()
	if tc != nil {
		fmt.Fprintf(tc.log, "%T %+v\n", ev, ev)
	}
	if h.handler != nil {
		h.handler(ev, c)
	}
}
