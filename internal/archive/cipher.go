package archive

import (
	"crypto/aes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
)

const (
	// ObfuscationHeaderName is the response header announcing a ciphered prefix
	ObfuscationHeaderName = "X-Obfuscate"
	// ObfuscatedPrefixLen is how many leading payload bytes are ciphered
	ObfuscatedPrefixLen = 1024
	// SupportedObfuscationVersion is the only scheme this client decrypts
	SupportedObfuscationVersion = "1"
)

var hostPrefix = regexp.MustCompile(`https?://.*?/`)

// ObfuscationHeader holds the per-response decryption parameters.
type ObfuscationHeader struct {
	Version     string
	Nonce       [8]byte
	CounterSeed uint64
}

// ParseObfuscationHeader parses "<version>|<base64(nonce ++ counter)>".
// Only version "1" is accepted.
func ParseObfuscationHeader(value string) (*ObfuscationHeader, error) {
	version, encoded, ok := strings.Cut(value, "|")
	if !ok {
		return nil, fmt.Errorf("%w: malformed header %q", ErrUnsupportedObfuscation, value)
	}
	if version != SupportedObfuscationVersion {
		return nil, fmt.Errorf("%w: version %s", ErrUnsupportedObfuscation, version)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad counter encoding: %v", ErrUnsupportedObfuscation, err)
	}
	if len(raw) != 16 {
		return nil, fmt.Errorf("%w: counter block is %d bytes, want 16", ErrUnsupportedObfuscation, len(raw))
	}

	h := &ObfuscationHeader{Version: version, CounterSeed: binary.BigEndian.Uint64(raw[8:])}
	copy(h.Nonce[:], raw[:8])
	return h, nil
}

// KeyString normalizes a request URL into the string the page key is hashed from:
// every "scheme://host/" run becomes a single "/".
func KeyString(requestURL string) string {
	return hostPrefix.ReplaceAllString(requestURL, "/")
}

// DeriveKey returns the 16-byte AES key for a page request URL.
func DeriveKey(requestURL string) []byte {
	sum := sha1.Sum([]byte(KeyString(requestURL)))
	return sum[:16]
}

// XORKeyStream applies the counter-mode keystream to data in place. Each 16-byte
// counter block is the 8-byte nonce followed by the big-endian 64-bit counter,
// which starts at the seed and wraps within 64 bits.
func XORKeyStream(key []byte, h *ObfuscationHeader, data []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}

	var ctr, stream [aes.BlockSize]byte
	copy(ctr[:8], h.Nonce[:])
	counter := h.CounterSeed

	for off := 0; off < len(data); off += aes.BlockSize {
		binary.BigEndian.PutUint64(ctr[8:], counter)
		block.Encrypt(stream[:], ctr[:])
		end := off + aes.BlockSize
		if end > len(data) {
			end = len(data)
		}
		for i := off; i < end; i++ {
			data[i] ^= stream[i-off]
		}
		counter++
	}
	return nil
}

// Deobfuscate returns a copy of body with its first ObfuscatedPrefixLen bytes
// decrypted using a key derived from requestURL. Remaining bytes are copied as is.
func Deobfuscate(requestURL string, h *ObfuscationHeader, body []byte) ([]byte, error) {
	out := make([]byte, len(body))
	copy(out, body)

	n := len(out)
	if n > ObfuscatedPrefixLen {
		n = ObfuscatedPrefixLen
	}
	if err := XORKeyStream(DeriveKey(requestURL), h, out[:n]); err != nil {
		return nil, err
	}
	return out, nil
}
