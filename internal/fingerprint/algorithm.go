package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm names a hash function usable for fingerprints.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE3  Algorithm = "blake3"
	XXHash  Algorithm = "xxhash"
	CRC32   Algorithm = "crc32"
	Adler32 Algorithm = "adler32"
)

// DefaultAlgorithm is used when no hash function is configured.
const DefaultAlgorithm = SHA256

// Algorithms lists the supported hash functions.
func Algorithms() []Algorithm {
	return []Algorithm{SHA256, BLAKE3, XXHash, CRC32, Adler32}
}

// ParseAlgorithm resolves a configured hash function name.
func ParseAlgorithm(name string) (Algorithm, error) {
	n := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if n == "" {
		return DefaultAlgorithm, nil
	}
	for _, a := range Algorithms() {
		if a == n {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported hash function %q", name)
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case BLAKE3:
		return blake3.New()
	case XXHash:
		return xxhash.New()
	case CRC32:
		return crc32.NewIEEE()
	case Adler32:
		return adler32.New()
	default:
		return sha256.New()
	}
}
