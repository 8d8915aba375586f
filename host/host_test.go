package host

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/tnlconn/conn"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return pc
}

// TestRoundTripOverRealSockets drives two Host/Connection pairs over real
// loopback UDP sockets end to end: a data packet sent by one side arrives
// as a PacketEvent on the other and is recorded in that side's event log.
func TestRoundTripOverRealSockets(t *testing.T) {
	pcA := listen(t)
	defer pcA.Close()
	pcB := listen(t)
	defer pcB.Close()

	var mu sync.Mutex
	var aEvents, bEvents []conn.Event

	hostA := New(pcA, DefaultConfig(), func(ev conn.Event, c *conn.Connection) {
		mu.Lock()
		aEvents = append(aEvents, ev)
		mu.Unlock()
	})
	hostB := New(pcB, DefaultConfig(), func(ev conn.Event, c *conn.Connection) {
		mu.Lock()
		bEvents = append(bEvents, ev)
		mu.Unlock()
	})
	defer hostA.Close()
	defer hostB.Close()

	go hostA.Run()
	go hostB.Run()

	connA := conn.New(hostA, pcB.LocalAddr(), 100)
	connB := conn.New(hostB, pcA.LocalAddr(), 900)
	connA.SetInitialRecvSequence(900)
	connB.SetInitialRecvSequence(100)
	connA.SetState(conn.StateConnected)
	connB.SetState(conn.StateConnected)
	hostA.Add(connA)
	hostB.Add(connB)

	res, seq, err := connA.SendDataPacket([]byte("hello over the wire"))
	require.NoError(t, err)
	assert.Equal(t, conn.SendOK, res)
	assert.Equal(t, uint32(101), seq)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range bEvents {
			if _, ok := ev.(conn.PacketEvent); ok {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	pe := bEvents[0].(conn.PacketEvent)
	mu.Unlock()
	assert.Equal(t, []byte("hello over the wire"), pe.Data)
	assert.Contains(t, hostB.EventLog(connB), "PacketEvent")
}

// TestSimulatedPacketLossDropsAllTraffic verifies a loss probability of 1.0
// drops every datagram, so the receiving side observes no event.
func TestSimulatedPacketLossDropsAllTraffic(t *testing.T) {
	pcA := listen(t)
	defer pcA.Close()
	pcB := listen(t)
	defer pcB.Close()

	cfg := DefaultConfig()
	cfg.SimulatedPacketLoss = 1.0

	hostA := New(pcA, cfg, nil)
	hostB := New(pcB, cfg, nil)
	defer hostA.Close()
	defer hostB.Close()
	go hostA.Run()
	go hostB.Run()

	connA := conn.New(hostA, pcB.LocalAddr(), 0)
	connB := conn.New(hostB, pcA.LocalAddr(), 0)
	connA.SetState(conn.StateConnected)
	connB.SetState(conn.StateConnected)
	hostA.Add(connA)
	hostB.Add(connB)

	_, _, err := connA.SendDataPacket([]byte("lost"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, hostB.EventLog(connB), "a fully lossy link must deliver no events")
}
