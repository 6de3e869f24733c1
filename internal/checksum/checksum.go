// Package checksum computes and labels content hashes for archived objects.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Algorithm labels understood by the cache and long-term storage.
const (
	SHA256 = "sha256"
	CRC32  = "crc32"
)

// chunkSize bounds the buffer used while hashing a stream.
const chunkSize = 32 * 1024

// Checksum is a hex-encoded hash labeled with the algorithm that produced it.
type Checksum struct {
	Hash      string `json:"hash"`
	Algorithm string `json:"algorithm"`
}

// New normalizes hash to lower case and labels it.
func New(hash, algorithm string) Checksum {
	return Checksum{Hash: strings.ToLower(strings.TrimSpace(hash)), Algorithm: algorithm}
}

// SHA256Of labels hash as a SHA-256 checksum.
func SHA256Of(hash string) Checksum {
	return New(hash, SHA256)
}

func (c Checksum) String() string {
	return c.Algorithm + ":" + c.Hash
}

// IsZero reports whether no hash is set.
func (c Checksum) IsZero() bool {
	return c.Hash == ""
}

// Digest converts a SHA-256 checksum into an OCI digest string and validates
// the hash encoding along the way.
func (c Checksum) Digest() (digest.Digest, error) {
	if c.Algorithm != SHA256 {
		return "", fmt.Errorf("checksum algorithm %q has no digest form", c.Algorithm)
	}
	d := digest.NewDigestFromEncoded(digest.SHA256, c.Hash)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid sha256 checksum: %w", err)
	}
	return d, nil
}

// FromDigest parses an OCI digest string ("sha256:<hex>") into a Checksum.
func FromDigest(raw string) (Checksum, error) {
	d, err := digest.Parse(raw)
	if err != nil {
		return Checksum{}, err
	}
	if d.Algorithm() != digest.SHA256 {
		return Checksum{}, fmt.Errorf("unsupported digest algorithm %q", d.Algorithm())
	}
	return SHA256Of(d.Encoded()), nil
}

// CalcSHA256 reads r to exhaustion in fixed-size chunks and returns its
// SHA-256 checksum.
func CalcSHA256(r io.Reader) (Checksum, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return Checksum{}, fmt.Errorf("hash stream: %w", err)
	}
	return SHA256Of(hex.EncodeToString(h.Sum(nil))), nil
}
