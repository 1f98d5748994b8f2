package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	errShortEnvelope = errors.New("envelope too short")
	errBlockSize     = errors.New("ciphertext is not a multiple of the block size")
	errPadding       = errors.New("invalid padding")
	errChecksum      = errors.New("content checksum mismatch")
)

type recordCipher interface {
	open(version, tag uint8, envelope []byte) ([]byte, error)
	seal(version, tag uint8, content []byte, rand io.Reader) ([]byte, error)
}

// cbcCipher: iv[16] | AES-256-CBC(PKCS#7(crc32 u32 | content))
type cbcCipher struct {
	block cipher.Block
}

func newCBCCipher(key []byte) (*cbcCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &cbcCipher{block: block}, nil
}

func (c *cbcCipher) open(_, _ uint8, envelope []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(envelope) < 2*bs {
		return nil, fmt.Errorf("%w: %d bytes", errShortEnvelope, len(envelope))
	}
	iv, ct := envelope[:bs], envelope[bs:]
	if len(ct)%bs != 0 {
		return nil, errBlockSize
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)

	plain, err := unpad(plain, bs)
	if err != nil {
		return nil, err
	}
	if len(plain) < 4 {
		return nil, errChecksum
	}
	sum, content := binary.LittleEndian.Uint32(plain[:4]), plain[4:]
	if crc32.ChecksumIEEE(content) != sum {
		return nil, errChecksum
	}
	return content, nil
}

func (c *cbcCipher) seal(_, _ uint8, content []byte, rand io.Reader) ([]byte, error) {
	bs := c.block.BlockSize()
	plain := make([]byte, 4, 4+len(content)+bs)
	binary.LittleEndian.PutUint32(plain, crc32.ChecksumIEEE(content))
	plain = pad(append(plain, content...), bs)

	out := make([]byte, bs+len(plain))
	if _, err := io.ReadFull(rand, out[:bs]); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(c.block, out[:bs]).CryptBlocks(out[bs:], plain)
	return out, nil
}

func pad(b []byte, bs int) []byte {
	n := bs - len(b)%bs
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, bs int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > bs || n > len(b) {
		return nil, errPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}

// aeadCipher: nonce[12] | ChaCha20-Poly1305(content), AAD = tag, version
type aeadCipher struct {
	aead cipher.AEAD
}

func newAEADCipher(key []byte) (*aeadCipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{aead: aead}, nil
}

func (c *aeadCipher) open(version, tag uint8, envelope []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(envelope) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", errShortEnvelope, len(envelope))
	}
	return c.aead.Open(nil, envelope[:ns], envelope[ns:], []byte{tag, version})
}

func (c *aeadCipher) seal(version, tag uint8, content []byte, rand io.Reader) ([]byte, error) {
	ns := c.aead.NonceSize()
	nonce := make([]byte, ns, ns+len(content)+c.aead.Overhead())
	if _, err := io.ReadFull(rand, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, content, []byte{tag, version}), nil
}
