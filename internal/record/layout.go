package record

import (
	"flightlog/internal/cursor"
	"flightlog/internal/flterr"
	"flightlog/internal/keys"
)

// Prefix sizes
const (
	LegacyPrefixSize = 12
	PrefixSize       = 100

	saltOffset = 20
)

// Layout locates the sections of a log
type Layout struct {
	Version       uint8
	DetailsOffset int
	DetailsLength int
	RecordsStart  int
	RecordsEnd    int

	// DetailsMissing is set when the details block lies past the end of the
	// buffer
	DetailsMissing bool

	// Salt is the key salt of encrypted logs, nil otherwise
	Salt []byte
}

// LengthSize returns the width of the record length field
func (l Layout) LengthSize() int {
	if l.Version <= 12 {
		return 1
	}
	return 2
}

// Obfuscated reports whether record bodies are XOR-obfuscated
func (l Layout) Obfuscated() bool {
	return l.Version >= 7
}

// PrefixSizeFor returns the prefix size of a format version
func PrefixSizeFor(version uint8) int {
	if version < 6 {
		return LegacyPrefixSize
	}
	return PrefixSize
}

// ParseLayout reads the prefix of buf and resolves the record and details
// sections
func ParseLayout(buf []byte) (Layout, error) {
	c := cursor.New(buf)

	detailOffset, err := c.Uint64()
	if err != nil {
		return Layout{}, err
	}
	detailLength, err := c.Uint16()
	if err != nil {
		return Layout{}, err
	}
	version, err := c.Uint8()
	if err != nil {
		return Layout{}, err
	}

	prefix := PrefixSizeFor(version)
	if len(buf) < prefix {
		return Layout{}, flterr.Newf(flterr.KindUnexpectedEnd,
			"version %d prefix needs %d bytes, buffer has %d", version, prefix, len(buf)).At(0)
	}

	l := Layout{
		Version:       version,
		DetailsLength: int(detailLength),
	}

	if version >= keys.FirstEncryptedVersion {
		l.Salt = buf[saltOffset : saltOffset+keys.SaltSize : saltOffset+keys.SaltSize]
	}

	if version >= 12 {
		l.DetailsOffset = PrefixSize
		l.RecordsStart = PrefixSize + int(detailLength)
		l.RecordsEnd = len(buf)
		if l.RecordsStart > len(buf) {
			return Layout{}, flterr.Newf(flterr.KindUnexpectedEnd,
				"details block of %d bytes overruns buffer of %d", detailLength, len(buf)).At(PrefixSize)
		}
		return l, nil
	}

	if detailOffset < uint64(prefix) {
		return Layout{}, flterr.Newf(flterr.KindInvalidLayout,
			"details offset %d lies inside the %d byte prefix", detailOffset, prefix).At(0)
	}
	l.RecordsStart = prefix
	if detailOffset > uint64(len(buf)) {
		l.DetailsOffset = len(buf)
		l.RecordsEnd = len(buf)
		l.DetailsMissing = true
		return l, nil
	}
	l.DetailsOffset = int(detailOffset)
	l.RecordsEnd = int(detailOffset)
	return l, nil
}
