package cache

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

// Well-known metadata keys.
const (
	MetaSize              = "size"
	MetaChecksum          = "checksum"
	MetaChecksumAlgorithm = "checksumAlgorithm"
	MetaModified          = "modified"
	MetaContentType       = "contentType"
)

// Metadata carries descriptive properties of an object being cached.
type Metadata map[string]any

// Clone returns a shallow copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Size returns the size entry, accepting the numeric types JSON decoding and
// callers commonly produce.
func (m Metadata) Size() (int64, bool) {
	switch v := m[MetaSize].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Checksum returns the checksum entries as a Checksum.
func (m Metadata) Checksum() (checksum.Checksum, bool) {
	hash, ok := m[MetaChecksum].(string)
	if !ok || hash == "" {
		return checksum.Checksum{}, false
	}
	alg, _ := m[MetaChecksumAlgorithm].(string)
	if alg == "" {
		alg = checksum.SHA256
	}
	return checksum.New(hash, alg), true
}

// SetChecksum records both the hash and its algorithm label.
func (m Metadata) SetChecksum(sum checksum.Checksum) {
	m[MetaChecksum] = sum.Hash
	m[MetaChecksumAlgorithm] = sum.Algorithm
}

// Modified returns the modification time entry.
func (m Metadata) Modified() (time.Time, bool) {
	switch v := m[MetaModified].(type) {
	case time.Time:
		return v, !v.IsZero()
	case int64:
		return time.UnixMilli(v).UTC(), true
	}
	return time.Time{}, false
}
