package record

import (
	"encoding/hex"
	"hash/crc64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC64Jones(t *testing.T) {
	tests := []struct {
		name string
		init uint64
		data []byte
		want uint64
	}{
		{name: "check value", init: 0, data: []byte("123456789"), want: 0xe9c6d914c4b8d9ca},
		{name: "empty keeps init", init: 0x42, data: nil, want: 0x42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, crc64Jones(tt.init, tt.data))
		})
	}
}

func TestCRC64Jones_MatchesStdlibTable(t *testing.T) {
	table := crc64.MakeTable(jonesPoly)
	data := []byte("flight log record body")
	for _, init := range []uint64{0, 1, 0x5B, 0xFF} {
		// hash/crc64 inverts before and after
		want := ^crc64.Update(^init, table, data)
		assert.Equal(t, want, crc64Jones(init, data))
	}
}

func TestXORKey(t *testing.T) {
	tests := []struct {
		name string
		tag  Kind
		seed uint8
		want string
	}{
		{name: "osd seed 0x5A", tag: KindOSD, seed: 0x5A, want: "ff69f5a1789a411b"},
		{name: "osd seed 0", tag: KindOSD, seed: 0, want: "44446fc915001d38"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := xorKey(tt.tag, tt.seed)
			assert.Equal(t, tt.want, hex.EncodeToString(key[:]))
		})
	}
}

func TestObfuscate_RoundTrip(t *testing.T) {
	content := []byte("a body longer than the eight byte key")
	body := Obfuscate(KindHome, 0x21, content)

	assert.Equal(t, uint8(0x21), body[0])
	assert.Len(t, body, len(content)+1)
	assert.NotEqual(t, content, body[1:])
	assert.Equal(t, content, Deobfuscate(KindHome, body))
}

func TestDeobfuscate_DependsOnTag(t *testing.T) {
	body := Obfuscate(KindOSD, 9, []byte{1, 2, 3, 4})
	assert.NotEqual(t, []byte{1, 2, 3, 4}, Deobfuscate(KindGimbal, body))
}

func BenchmarkDeobfuscate(b *testing.B) {
	body := Obfuscate(KindOSD, 0x5A, make([]byte, osdSize))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Deobfuscate(KindOSD, body)
	}
}
