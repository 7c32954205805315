package video

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Digest returns a BLAKE2b-256 content digest over the frame's dimensions
// and samples. Used as a cache key for derived data (flow fields) and for
// cheap identity checks between frames.
func (f *Frame) Digest() [32]byte {
	h, _ := blake2b.New256(nil)

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(f.Width))
	binary.LittleEndian.PutUint32(header[4:8], uint32(f.Height))
	binary.LittleEndian.PutUint32(header[8:12], uint32(f.Channels))
	h.Write(header[:])
	h.Write(f.Pix)

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
