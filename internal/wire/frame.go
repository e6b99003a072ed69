package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// HeaderSize is the byte length of the frame prefix.
const HeaderSize = 4

// MaxPayloadSize caps a frame body (512 MiB) so a corrupt prefix cannot drive
// an absurd allocation. A 4k float RGBA raster is ~256 MiB.
const MaxPayloadSize = 512 << 20

var (
	// ErrFraming reports a malformed or truncated length prefix.
	ErrFraming = errors.New("malformed frame header")
	// ErrDecode reports a body that does not parse as the expected message.
	ErrDecode = errors.New("malformed message body")
)

// Encode serializes body as JSON and prepends the 4-byte big-endian length
// prefix. The returned slice is a complete frame ready for the socket.
func Encode(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d exceeds %d", ErrFraming, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeHeader reads the length prefix and returns the declared body length.
// Fewer than HeaderSize bytes, or a declared length above MaxPayloadSize, is
// an ErrFraming.
func DecodeHeader(hdr []byte) (int, error) {
	if len(hdr) < HeaderSize {
		return 0, fmt.Errorf("%w: got %d of %d header bytes", ErrFraming, len(hdr), HeaderSize)
	}
	n := binary.BigEndian.Uint32(hdr[:HeaderSize])
	if n > MaxPayloadSize {
		return 0, fmt.Errorf("%w: declared length %d exceeds %d", ErrFraming, n, MaxPayloadSize)
	}
	return int(n), nil
}

// DecodeBody parses exactly length bytes of payload into out. Callers never
// see a partial message: either out is fully populated or an error is
// returned.
func DecodeBody(payload []byte, length int, out any) error {
	if len(payload) != length {
		return fmt.Errorf("%w: have %d bytes, header declared %d", ErrFraming, len(payload), length)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
