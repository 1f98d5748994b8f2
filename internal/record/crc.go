package record

import "encoding/binary"

// CRC-64/Jones polynomial, reflected form
const jonesPoly = 0x95AC9329AC4BC9B5

// Multiplier applied to the seed before hashing it into an XOR key
const xorKeyMultiplier uint64 = 0x123456789ABCDEF0

// Pre-computed CRC table
var crcTable [256]uint64

func init() {
	for i := 0; i < 256; i++ {
		c := uint64(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = (c >> 1) ^ jonesPoly
			} else {
				c >>= 1
			}
		}
		crcTable[i] = c
	}
}

// crc64Jones computes a reflected CRC-64/Jones with the given initial value
// and no final xor
func crc64Jones(crc uint64, data []byte) uint64 {
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// xorKey derives the 8-byte obfuscation key of a record body
func xorKey(tag Kind, seed uint8) [8]byte {
	var in [8]byte
	binary.LittleEndian.PutUint64(in[:], xorKeyMultiplier*uint64(seed))

	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], crc64Jones(uint64(uint8(uint8(tag)+seed)), in[:]))
	return key
}

// Deobfuscate strips the seed byte and XORs the rest of body into a new slice.
// body must not be empty.
func Deobfuscate(tag Kind, body []byte) []byte {
	return xorWith(xorKey(tag, body[0]), body[1:], make([]byte, 0, len(body)-1))
}

// Obfuscate is the inverse of Deobfuscate
func Obfuscate(tag Kind, seed uint8, content []byte) []byte {
	out := make([]byte, 1, len(content)+1)
	out[0] = seed
	return xorWith(xorKey(tag, seed), content, out)
}

func xorWith(key [8]byte, in, out []byte) []byte {
	for i, b := range in {
		out = append(out, b^key[i%8])
	}
	return out
}
