// Package params carries the value object built up incrementally during a
// connection's handshake: nonces, puzzle solution, asymmetric key material,
// the derived shared secret, and the resulting symmetric key/IV. It owns no
// behavior — it is mutated only by the handshake driver (the host
// collaborator) and becomes read-only once the owning connection reaches
// the Connected state.
package params

// NonceSize is the byte length of handshake nonces, matching the original
// client-puzzle nonce convention.
const NonceSize = 16

// Nonce is fresh random data bound into the handshake transcript to prevent
// replay.
type Nonce [NonceSize]byte

// Parameters is the handshake-parameter carrier (spec.md §3).
type Parameters struct {
	// IsInitiator is true if this host initiated the connection.
	IsInitiator bool
	// IsArranged is true if this is a third-party-introduced connection.
	IsArranged bool
	// PossibleAddresses lists rendezvous candidates for an arranged
	// connection; unused for a direct connection.
	PossibleAddresses []string

	// PuzzleRetried is true if a puzzle solution was already rejected by
	// the server once.
	PuzzleRetried bool
	LocalNonce    Nonce
	PeerNonce     Nonce

	PuzzleDifficulty uint32
	PuzzleSolution   uint32
	PuzzleRequestIdx uint32

	// PeerPublicKey and LocalPrivateKey are opaque asymmetric key material.
	// The asymmetric primitive itself is an external collaborator (Design
	// Notes §9) — this package only carries the bytes.
	PeerPublicKey  []byte
	LocalPrivateKey []byte

	SharedSecret     []byte
	ArrangedSecret   []byte
	SymmetricKey     []byte
	InitVector       []byte

	// ConnectData is arbitrary application data attached to the connect
	// request/accept, written and read by the injected ConnectDataCodec.
	ConnectData []byte
}

// ConnectDataCodec is the injected capability for encoding/decoding
// application-specific connect-request and connect-accept data, and for
// validating the peer's public key. Concrete connections are parameterized
// by an implementation of this interface rather than embedding the logic
// themselves (Design Notes §9).
type ConnectDataCodec interface {
	WriteRequest(p *Parameters) ([]byte, error)
	ReadRequest(p *Parameters, data []byte) error
	WriteAccept(p *Parameters) ([]byte, error)
	ReadAccept(p *Parameters, data []byte) error
	ValidatePublicKey(key []byte, isInitiator bool) bool
}
