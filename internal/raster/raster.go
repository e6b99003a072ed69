package raster

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Image is a planar-free, interleaved float raster: Pix holds
// Width*Height*Channels samples in row-major order.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// New allocates a zeroed image of the given dimensions.
func New(w, h, c int) Image {
	return Image{Width: w, Height: h, Channels: c, Pix: make([]float32, w*h*c)}
}

// Valid reports whether the dimensions are positive and the pixel buffer
// length matches them.
func (im Image) Valid() bool {
	return im.Width > 0 && im.Height > 0 && im.Channels > 0 &&
		len(im.Pix) == im.Width*im.Height*im.Channels
}

// Row returns the samples for scanline y.
func (im Image) Row(y int) []float32 {
	stride := im.Width * im.Channels
	return im.Pix[y*stride : (y+1)*stride]
}

// Digest returns a content identity for dirty checking: a hex SHA-256 of the
// dimensions and raw sample bytes. Equal digests mean equal images.
func (im Image) Digest() string {
	h := sha256.New()
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(im.Width))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(im.Height))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(im.Channels))
	h.Write(hdr[:])
	var buf [4]byte
	for _, v := range im.Pix {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Pack serializes the samples as little-endian float32 bytes for the wire.
func Pack(pix []float32) []byte {
	out := make([]byte, 4*len(pix))
	for i, v := range pix {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// Unpack is the inverse of Pack. The byte length must be a multiple of four.
func Unpack(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("pixel payload length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
