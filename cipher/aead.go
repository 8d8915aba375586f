// Package cipher binds a per-connection symmetric key to the wire protocol's
// encrypt-then-MAC boundary. The counter (nonce) used for both the keystream
// and the signature is derived entirely from cleartext header fields already
// on the wire — (sendSeq, recvSeq, packetType, 0) — so no nonce is ever
// transmitted separately; tampering with the header changes the counter the
// receiver derives and the signature check fails.
package cipher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20"
)

// SignatureBytes is the fixed size of the trailing MAC, matching the
// original protocol's message_signature_bytes.
const SignatureBytes = 5

// KeySize is the size of the symmetric key and IV installed at handshake
// completion.
const KeySize = 32

// ErrRejected is returned when the trailing signature fails verification.
// Per spec.md §4.2/§7 the caller must drop the packet silently on this error
// — it must never mutate connection state.
var ErrRejected = errors.New("cipher: signature rejected")

// AEAD is the per-connection authenticated cipher. It is installed once, at
// handshake completion, and is exclusively owned by the connection
// thereafter (Design Notes §9: "a single owning handle per artifact
// suffices").
type AEAD struct {
	key [KeySize]byte
	iv  [KeySize]byte
}

// New builds an AEAD from the symmetric key and IV negotiated during the
// handshake (params.Parameters.SymmetricKey / InitVector).
func New(key, iv []byte) (*AEAD, error) {
	if len(key) != KeySize || len(iv) != KeySize {
		return nil, errors.New("cipher: key and iv must be 32 bytes")
	}
	a := &AEAD{}
	copy(a.key[:], key)
	copy(a.iv[:], iv)
	return a, nil
}

// counter derives the 16-byte chacha20 nonce-plus-counter-seed from the
// cleartext header fields. Matches connection.h's setup_counter(send_seq,
// recv_seq, packet_type, 0) exactly; the trailing 0 is a sub-counter field
// reserved for a future multi-block extension and is always zero here.
func (a *AEAD) counter(sendSeq, recvSeq uint32, packetType uint32) (nonce [chacha20.NonceSize]byte, seed uint32) {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], sendSeq)
	binary.LittleEndian.PutUint32(buf[4:8], recvSeq)
	binary.LittleEndian.PutUint32(buf[8:12], packetType)
	copy(nonce[:], buf[:])
	return nonce, 0
}

func (a *AEAD) mac(nonce [chacha20.NonceSize]byte, header, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, a.key[:])
	mac.Write(a.iv[:])
	mac.Write(nonce[:])
	mac.Write(header)
	mac.Write(ciphertext)
	return mac.Sum(nil)[:SignatureBytes]
}

// SealInPlace encrypts buf[headerLen:] with the counter derived from
// (sendSeq, recvSeq, packetType) and appends the SignatureBytes-byte
// signature, covering the cleartext header and the ciphertext.
func (a *AEAD) SealInPlace(buf []byte, headerLen int, sendSeq, recvSeq, packetType uint32) ([]byte, error) {
	nonce, seed := a.counter(sendSeq, recvSeq, packetType)
	stream, err := chacha20.NewUnauthenticatedCipher(a.key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	stream.SetCounter(seed)

	body := buf[headerLen:]
	stream.XORKeyStream(body, body)

	sig := a.mac(nonce, buf[:headerLen], body)
	return append(buf, sig...), nil
}

// OpenInPlace verifies the trailing signature and decrypts buf[headerLen:]
// in place (signature excluded). Returns ErrRejected on MAC mismatch; the
// caller must leave connection state untouched and drop the packet.
func (a *AEAD) OpenInPlace(buf []byte, headerLen int, sendSeq, recvSeq, packetType uint32) ([]byte, error) {
	if len(buf) < headerLen+SignatureBytes {
		return nil, ErrRejected
	}
	bodyEnd := len(buf) - SignatureBytes
	header := buf[:headerLen]
	body := buf[headerLen:bodyEnd]
	gotSig := buf[bodyEnd:]

	nonce, seed := a.counter(sendSeq, recvSeq, packetType)
	wantSig := a.mac(nonce, header, body)
	if !hmac.Equal(gotSig, wantSig) {
		return nil, ErrRejected
	}

	stream, err := chacha20.NewUnauthenticatedCipher(a.key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	stream.SetCounter(seed)
	stream.XORKeyStream(body, body)

	return buf[:bodyEnd], nil
}
