package bes

// The hash functions available to the integrity modes and KDFs.

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Hash function to use.
type HashFunc uint8

const (
	// SHA-256 from FIPS 180-4.
	SHA2_256 HashFunc = iota

	// SHA-512 from FIPS 180-4.
	SHA2_512

	// SHAKE-256 with 256-bit output, from FIPS 202.
	SHAKE256
)

func (h HashFunc) String() string {
	switch h {
	case SHA2_256:
		return "SHA256"
	case SHA2_512:
		return "SHA512"
	case SHAKE256:
		return "SHAKE256"
	}
	return "Unknown"
}

// Returns a fresh instance of the hash.
func (h HashFunc) New() hash.Hash {
	switch h {
	case SHA2_256:
		return sha256.New()
	case SHA2_512:
		return sha512.New()
	case SHAKE256:
		return sha3.NewShake256()
	}
	return nil
}

// Size of a digest in bytes.
func (h HashFunc) Size() int {
	switch h {
	case SHA2_256:
		return sha256.Size
	case SHA2_512:
		return sha512.Size
	case SHAKE256:
		return 32
	}
	return 0
}

// Size of an input block in bytes.
func (h HashFunc) BlockSize() int {
	switch h {
	case SHA2_256:
		return sha256.BlockSize
	case SHA2_512:
		return sha512.BlockSize
	case SHAKE256:
		return 136 // SHAKE-256 rate
	}
	return 0
}
