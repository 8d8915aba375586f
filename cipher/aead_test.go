package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAEAD(t *testing.T) *AEAD {
	t.Helper()
	key := make([]byte, KeySize)
	iv := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
		iv[i] = byte(255 - i)
	}
	a, err := New(key, iv)
	require.NoError(t, err)
	return a
}

// TestSealOpenRoundTrip verifies that a sealed packet opens to the same
// plaintext when the counter fields match on both sides.
func TestSealOpenRoundTrip(t *testing.T) {
	a := testAEAD(t)

	header := []byte{0xAA, 0xBB}
	plaintext := []byte("ack_byte_count and ack mask words live here")
	buf := append(append([]byte(nil), header...), plaintext...)

	sealed, err := a.SealInPlace(buf, len(header), 101, 55, 0)
	require.NoError(t, err)

	opened, err := a.OpenInPlace(append([]byte(nil), sealed...), len(header), 101, 55, 0)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), header...), plaintext...), opened)
}

// TestOpenRejectsTamperedCiphertext verifies that flipping a single
// ciphertext byte is detected as a MAC failure (spec.md §4.2, boundary E).
func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	a := testAEAD(t)

	header := []byte{0x01}
	plaintext := []byte("data packet payload")
	buf := append(append([]byte(nil), header...), plaintext...)

	sealed, err := a.SealInPlace(buf, len(header), 10, 10, 0)
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(header)] ^= 0x01

	_, err = a.OpenInPlace(tampered, len(header), 10, 10, 0)
	assert.ErrorIs(t, err, ErrRejected)
}

// TestOpenRejectsMismatchedCounter verifies that a signature computed under
// one (sendSeq, recvSeq, packetType) counter is rejected when the receiver
// derives a different counter, e.g. from a forged header field.
func TestOpenRejectsMismatchedCounter(t *testing.T) {
	a := testAEAD(t)

	header := []byte{0x02}
	buf := append(append([]byte(nil), header...), []byte("payload")...)

	sealed, err := a.SealInPlace(buf, len(header), 7, 3, 0)
	require.NoError(t, err)

	_, err = a.OpenInPlace(append([]byte(nil), sealed...), len(header), 7, 4, 0)
	assert.ErrorIs(t, err, ErrRejected)
}

// TestOpenRejectsShortBuffer guards against panics on truncated input.
func TestOpenRejectsShortBuffer(t *testing.T) {
	a := testAEAD(t)
	_, err := a.OpenInPlace([]byte{0x00}, 1, 0, 0, 0)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNewRejectsWrongSizedKeys(t *testing.T) {
	_, err := New([]byte("short"), make([]byte, KeySize))
	assert.Error(t, err)
}
