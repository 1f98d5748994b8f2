// Package keys derives the record decryption key from the caller's credential
// and opens encrypted record envelopes.
package keys

import (
	"crypto/sha256"
	"io"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"flightlog/internal/flterr"
)

// Key derivation parameters
const (
	SaltSize         = 16
	KeySize          = 32
	PBKDF2Iterations = 10000
	MaxCredentialLen = 1024

	// FirstEncryptedVersion is the first format version carrying encrypted records
	FirstEncryptedVersion = 13
	// AEADVersion is the first format version using the AEAD envelope
	AEADVersion = 14
)

var hkdfInfo = []byte("flightlog record key v14")

// Scheme identifies a key derivation and envelope format
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeCBC
	SchemeAEAD
)

func (s Scheme) String() string {
	switch s {
	case SchemeCBC:
		return "pbkdf2-aes256-cbc"
	case SchemeAEAD:
		return "hkdf-chacha20poly1305"
	default:
		return "none"
	}
}

// SchemeFor returns the scheme used by a format version
func SchemeFor(version uint8) Scheme {
	switch {
	case version < FirstEncryptedVersion:
		return SchemeNone
	case version < AEADVersion:
		return SchemeCBC
	default:
		return SchemeAEAD
	}
}

// ValidateCredential checks the credential shape before any decoding starts.
// An empty credential is valid.
func ValidateCredential(credential string) error {
	if len(credential) > MaxCredentialLen {
		return flterr.Newf(flterr.KindInvalidArgument, "credential longer than %d bytes", MaxCredentialLen)
	}
	if strings.IndexFunc(credential, unicode.IsControl) >= 0 {
		return flterr.New(flterr.KindInvalidArgument, "credential contains control characters")
	}
	return nil
}

// Manager holds the caller's credential and lazily derives the key the first
// time an encrypted record needs it. A Manager belongs to one invocation.
type Manager struct {
	credential string
	salt       []byte
	logger     *logrus.Logger

	scheme Scheme
	cipher recordCipher
}

// NewManager creates a key manager; nothing is derived until Open is called
func NewManager(credential string, salt []byte, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Manager{
		credential: credential,
		salt:       append([]byte(nil), salt...),
		logger:     logger,
	}
}

// Derived reports whether a key has been derived
func (m *Manager) Derived() bool {
	return m.cipher != nil
}

// Open decrypts one record envelope. tag and version are authenticated where
// the scheme supports it.
func (m *Manager) Open(version, tag uint8, envelope []byte) ([]byte, error) {
	c, err := m.cipherFor(version)
	if err != nil {
		return nil, err
	}
	plain, err := c.open(version, tag, envelope)
	if err != nil {
		return nil, flterr.Wrap(flterr.KindDecryptionFailed, err, "decryption of record payload failed, credential is wrong or payload is corrupt")
	}
	return plain, nil
}

// Seal encrypts content into an envelope for the given version. It exists for
// fixtures and tooling; nonce/iv material comes from rand.
func (m *Manager) Seal(version, tag uint8, content []byte, rand io.Reader) ([]byte, error) {
	c, err := m.cipherFor(version)
	if err != nil {
		return nil, err
	}
	return c.seal(version, tag, content, rand)
}

func (m *Manager) cipherFor(version uint8) (recordCipher, error) {
	scheme := SchemeFor(version)
	if scheme == SchemeNone {
		return nil, flterr.Newf(flterr.KindInvalidLayout, "format version %d has no encrypted records", version)
	}
	if m.cipher != nil && m.scheme == scheme {
		return m.cipher, nil
	}
	if m.credential == "" {
		return nil, flterr.New(flterr.KindDecryptionFailed, "decryption requires a credential but none was supplied")
	}
	if len(m.salt) != SaltSize {
		return nil, flterr.Newf(flterr.KindDecryptionFailed, "decryption needs a %d byte salt, got %d", SaltSize, len(m.salt))
	}

	key, err := m.derive(scheme)
	if err != nil {
		return nil, flterr.Wrap(flterr.KindDecryptionFailed, err, "key derivation failed")
	}

	var c recordCipher
	switch scheme {
	case SchemeCBC:
		c, err = newCBCCipher(key)
	case SchemeAEAD:
		c, err = newAEADCipher(key)
	}
	if err != nil {
		return nil, flterr.Wrap(flterr.KindDecryptionFailed, err, "cipher setup failed")
	}

	m.logger.WithFields(logrus.Fields{
		"version": version,
		"scheme":  scheme.String(),
	}).Debug("Derived record key")

	m.scheme = scheme
	m.cipher = c
	return c, nil
}

func (m *Manager) derive(scheme Scheme) ([]byte, error) {
	switch scheme {
	case SchemeCBC:
		return pbkdf2.Key([]byte(m.credential), m.salt, PBKDF2Iterations, KeySize, sha256.New), nil
	case SchemeAEAD:
		key := make([]byte, KeySize)
		r := hkdf.New(sha256.New, []byte(m.credential), m.salt, hkdfInfo)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, flterr.New(flterr.KindInvalidLayout, "no key derivation for this version")
	}
}
