// Package puzzle implements the client-puzzle proof-of-work challenge used
// during handshake to deter CPU-exhaustion and state-flooding attacks
// before a connecting host commits any per-peer state (SPEC_FULL §12,
// grounded in client_puzzle.h).
package puzzle

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/go-i2p/tnlconn/params"
)

// Difficulty levels, carried over from client_puzzle.h's constants.
const (
	InitialDifficulty = 17
	MaxDifficulty     = 26

	// RefreshInterval is how often the server's nonce pair rotates; a
	// solution is valid against the current or the immediately previous
	// nonce.
	RefreshInterval = 30 * time.Second
)

// ErrorCode classifies the outcome of CheckSolution.
type ErrorCode int

const (
	Success ErrorCode = iota
	InvalidSolution
	InvalidServerNonce
	InvalidClientNonce
	InvalidDifficulty
)

func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "success"
	case InvalidSolution:
		return "invalid_solution"
	case InvalidServerNonce:
		return "invalid_server_nonce"
	case InvalidClientNonce:
		return "invalid_client_nonce"
	case InvalidDifficulty:
		return "invalid_difficulty"
	default:
		return "unknown"
	}
}

// checkOneSolution hashes (solution, clientIdentity, clientNonce,
// serverNonce) and reports whether the leading puzzleDifficulty bits of the
// SHA-256 digest are all zero (client_puzzle.h:73-98).
func checkOneSolution(solution uint32, clientNonce, serverNonce params.Nonce, puzzleDifficulty uint32, clientIdentity uint32) bool {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], solution)
	binary.BigEndian.PutUint32(buf[4:8], clientIdentity)

	h := sha256.New()
	h.Write(buf[:])
	h.Write(clientNonce[:])
	h.Write(serverNonce[:])
	digest := h.Sum(nil)

	index := 0
	for puzzleDifficulty > 8 {
		if digest[index] != 0 {
			return false
		}
		index++
		puzzleDifficulty -= 8
	}
	mask := byte(0xFF << (8 - puzzleDifficulty))
	return mask&digest[index] == 0
}

// SolvePuzzle searches for a solution starting at startValue, spending up
// to budget wall-clock time before giving up. It reports the best trail
// value reached and whether a solution was actually found
// (client_puzzle.h's solvePuzzle, without the 50000-iteration fragment
// split — Go's scheduler preempts goroutines without it).
func SolvePuzzle(startValue uint32, clientNonce, serverNonce params.Nonce, puzzleDifficulty uint32, clientIdentity uint32, budget time.Duration) (solution uint32, ok bool) {
	deadline := time.Now().Add(budget)
	for v := startValue; ; v++ {
		if checkOneSolution(v, clientNonce, serverNonce, puzzleDifficulty, clientIdentity) {
			return v, true
		}
		if v%4096 == 0 && time.Now().After(deadline) {
			return v, false
		}
	}
}

// Solution is the result delivered on SolveAsync's channel.
type Solution struct {
	RequestIdx uint32
	Value      uint32
	Found      bool
}

// Solver runs puzzle solving on its own goroutine, off the host's
// single-threaded event loop, matching spec.md §5's "puzzle-solution
// computation is the only piece that MAY run on a worker thread; it is
// delivered back to the event loop via a request-index keyed queue".
type Solver struct{}

// SolveAsync launches one solve attempt on its own goroutine and returns a
// channel that receives exactly one Solution. The provided requestIdx is
// echoed back unchanged so the receiver can correlate the result to the
// connection that requested it.
func (Solver) SolveAsync(requestIdx uint32, clientNonce, serverNonce params.Nonce, puzzleDifficulty uint32, clientIdentity uint32) <-chan Solution {
	out := make(chan Solution, 1)
	go func() {
		value, found := SolvePuzzle(0, clientNonce, serverNonce, puzzleDifficulty, clientIdentity, 60*time.Second)
		out <- Solution{RequestIdx: requestIdx, Value: value, Found: found}
	}()
	return out
}

// nonceTable records client nonces that have already submitted a valid
// solution against one server nonce, rejecting replays
// (client_puzzle.h's NonceTable, simplified to a plain map — Go's map
// already amortizes the hash-table-with-chaining the original hand-rolls
// via PageAllocator).
type nonceTable struct {
	mu   sync.Mutex
	seen map[params.Nonce]struct{}
}

func newNonceTable() *nonceTable {
	return &nonceTable{seen: make(map[params.Nonce]struct{})}
}

func (t *nonceTable) checkAdd(n params.Nonce) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.seen[n]; exists {
		return false
	}
	t.seen[n] = struct{}{}
	return true
}

// Manager issues server nonces and difficulty, and verifies client
// solutions against the current or immediately previous nonce pair
// (client_puzzle.h's ClientPuzzleManager).
type Manager struct {
	mu sync.Mutex

	difficulty uint32

	currentNonce params.Nonce
	lastNonce    params.Nonce

	currentTable *nonceTable
	lastTable    *nonceTable

	lastRefresh time.Time
	randomRead  func([]byte)
}

// NewManager creates a Manager seeded from randomRead (typically
// crypto/rand.Read), at the standard initial difficulty.
func NewManager(randomRead func([]byte)) *Manager {
	m := &Manager{
		difficulty:   InitialDifficulty,
		currentTable: newNonceTable(),
		lastTable:    newNonceTable(),
		randomRead:   randomRead,
		lastRefresh:  time.Now(),
	}
	randomRead(m.currentNonce[:])
	randomRead(m.lastNonce[:])
	return m
}

// Tick rotates the current/previous nonce pair every RefreshInterval,
// discarding the oldest accepted-nonce table (client_puzzle.h's tick()).
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastRefresh) <= RefreshInterval {
		return
	}
	m.lastRefresh = now
	m.lastNonce = m.currentNonce
	m.lastTable, m.currentTable = m.currentTable, m.lastTable
	m.currentTable = newNonceTable()
	m.randomRead(m.currentNonce[:])
}

// CurrentNonce returns the server nonce to hand out in challenge
// responses.
func (m *Manager) CurrentNonce() params.Nonce {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentNonce
}

// CurrentDifficulty returns the difficulty to hand out alongside the
// current nonce.
func (m *Manager) CurrentDifficulty() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.difficulty
}

// CheckSolution verifies a submitted solution against the current or
// previous nonce, rejecting stale difficulty, unknown server nonces, bad
// hashes, and client-nonce replay, in that order (client_puzzle.h's
// checkSolution).
func (m *Manager) CheckSolution(solution uint32, clientNonce, serverNonce params.Nonce, puzzleDifficulty uint32, clientIdentity uint32) ErrorCode {
	m.mu.Lock()
	if puzzleDifficulty != m.difficulty {
		m.mu.Unlock()
		return InvalidDifficulty
	}
	var table *nonceTable
	switch serverNonce {
	case m.currentNonce:
		table = m.currentTable
	case m.lastNonce:
		table = m.lastTable
	}
	m.mu.Unlock()

	if table == nil {
		return InvalidServerNonce
	}
	if !checkOneSolution(solution, clientNonce, serverNonce, puzzleDifficulty, clientIdentity) {
		return InvalidSolution
	}
	if !table.checkAdd(clientNonce) {
		return InvalidClientNonce
	}
	return Success
}
