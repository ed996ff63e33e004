// Package hashutil provides content-hashing primitives (SHA-256 and BLAKE3).
// No other package in this module calls it; the archive adapter names
// overlong files by sequence number, not by hash.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashAlgo selects the hash function HashBytes uses.
type HashAlgo string

const (
	HashAlgoSHA256 HashAlgo = "sha256"
	HashAlgoBLAKE3 HashAlgo = "blake3"
)

// HashBytes returns the hex-encoded digest of data using algo. An unknown
// algo falls back to HashAlgoBLAKE3.
func HashBytes(data []byte, algo HashAlgo) string {
	switch algo {
	case HashAlgoSHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString is a convenience wrapper over HashBytes for string input.
func HashString(s string, algo HashAlgo) string {
	return HashBytes([]byte(s), algo)
}
