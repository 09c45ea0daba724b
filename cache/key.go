package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/chazu/moonc/proto"
)

// ---------------------------------------------------------------------------
// Deterministic key serialization.
//
// Encoding conventions:
//   - First byte: KeyVersion
//   - Integers: big-endian fixed-width (int64=8B, uint16=2B)
//   - Strings: uint32 big-endian length + bytes
// ---------------------------------------------------------------------------

// KeyVersion is the version prefix of the key serialization. Bumping it
// invalidates every cached entry.
const KeyVersion byte = 1

// Options are the compiler settings that change generated code.
type Options struct {
	MaxRegisters int
}

// Key identifies one compilation: the chunk name, the options and the
// source text, under the current prototype format.
type Key [32]byte

// String returns the key in hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// KeyFor computes the SHA-256 content key for compiling input as name.
func KeyFor(name, input string, opts Options) Key {
	s := &serializer{buf: make([]byte, 0, 64+len(name)+len(input))}
	s.writeByte(KeyVersion)
	s.writeUint16(proto.FormatVersion)
	s.writeString(name)
	s.writeInt64(int64(proto.NormalizeRegisters(opts.MaxRegisters)))
	s.writeString(input)
	return sha256.Sum256(s.buf)
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeInt64(v int64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, uint64(v))
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}
