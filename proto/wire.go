package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic prefixes every encoded prototype.
var Magic = []byte{'M', 'N', 'C', 0x1B}

// ErrBadMagic is returned when decoding data that is not an encoded
// prototype.
var ErrBadMagic = errors.New("proto: bad magic")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("proto: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes p as magic, a big-endian format version, and the
// canonical CBOR body. Equal prototypes encode to identical bytes.
func Marshal(p *Proto) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("proto: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+2+len(body))
	out = append(out, Magic...)
	out = binary.BigEndian.AppendUint16(out, FormatVersion)
	return append(out, body...), nil
}

// Unmarshal decodes data produced by Marshal.
func Unmarshal(data []byte) (*Proto, error) {
	if len(data) < len(Magic)+2 || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, ErrBadMagic
	}
	data = data[len(Magic):]
	if v := binary.BigEndian.Uint16(data); v != FormatVersion {
		return nil, fmt.Errorf("proto: unsupported format version %d (want %d)", v, FormatVersion)
	}
	var p Proto
	if err := cbor.Unmarshal(data[2:], &p); err != nil {
		return nil, fmt.Errorf("proto: unmarshal: %w", err)
	}
	return &p, nil
}
