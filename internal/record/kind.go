// Package record walks the tagged records of a flight log and turns the known
// ones into telemetry samples and metadata.
package record

import "fmt"

// Record framing constants
const (
	Terminator = 0xFF // closes every record body
	JPEGStart  = 0xD8 // second byte of an embedded image start marker
	JPEGEnd    = 0xD9 // second byte of an embedded image end marker
)

// Kind is the record type tag
type Kind uint8

// Known record kinds. Any other tag is decoded as Unknown.
const (
	KindOSD      Kind = 1
	KindHome     Kind = 2
	KindGimbal   Kind = 3
	KindRecover  Kind = 13
	KindFirmware Kind = 15

	// Tags that stay plaintext in encrypted logs
	KindKeyStorage        Kind = 56
	KindKeyStorageRecover Kind = 50
)

// Minimum content sizes of the known kinds
const (
	osdSize    = 48
	homeSize   = 32
	gimbalSize = 6
)

func (k Kind) String() string {
	switch k {
	case KindOSD:
		return "OSD"
	case KindHome:
		return "Home"
	case KindGimbal:
		return "Gimbal"
	case KindRecover:
		return "Recover"
	case KindFirmware:
		return "Firmware"
	case KindKeyStorage:
		return "KeyStorage"
	case KindKeyStorageRecover:
		return "KeyStorageRecover"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(k))
	}
}

// Known reports whether the decoder interprets this kind
func (k Kind) Known() bool {
	switch k {
	case KindOSD, KindHome, KindGimbal, KindRecover, KindFirmware:
		return true
	default:
		return false
	}
}

// Header describes one framed record
type Header struct {
	Tag       Kind
	Offset    int // offset of the tag byte
	Length    int // declared body length
	Encrypted bool
}

// encrypted reports whether a tag carries an encrypted body in this version
func encrypted(version uint8, tag Kind) bool {
	if version < 13 {
		return false
	}
	return tag != KindKeyStorage && tag != KindKeyStorageRecover
}
