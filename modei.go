package bes

import (
	"crypto/hmac"
	"hash"
)

// A ModeI protects data in integrity: it computes a tag over a message
// under a key.  The KDM uses it both as extraction primitive and, through
// the KDF, as PRF.
type ModeI interface {
	Name() string
	FullName() string
	TagSize() int   // tag size in bytes
	BlockSize() int // input block size in bytes

	// Loads the key used by the following Protect calls.
	SetKey(key []byte) Error

	ProtectInit() Error
	ProtectUpdate(data []byte) Error
	ProtectFinal() []byte

	// Computes the tag of data in one call.  A non-nil key overrides the
	// loaded key.
	ProtectOneShot(data, key []byte) ([]byte, Error)
}

// HMAC from FIPS 198-1 over a configurable hash function.
type hmacMode struct {
	hf  HashFunc
	key []byte
	mac hash.Hash
}

func NewHMAC(hf HashFunc) ModeI {
	return &hmacMode{hf: hf}
}

func (m *hmacMode) Name() string     { return "HMAC" }
func (m *hmacMode) FullName() string { return "HMAC-" + m.hf.String() }
func (m *hmacMode) TagSize() int     { return m.hf.Size() }
func (m *hmacMode) BlockSize() int   { return m.hf.BlockSize() }

func (m *hmacMode) SetKey(key []byte) Error {
	m.key = make([]byte, len(key))
	copy(m.key, key)
	return nil
}

func (m *hmacMode) ProtectInit() Error {
	if m.key == nil {
		return errorf(ErrSequence, "no key loaded")
	}
	hf := m.hf
	m.mac = hmac.New(func() hash.Hash { return hf.New() }, m.key)
	return nil
}

func (m *hmacMode) ProtectUpdate(data []byte) Error {
	if m.mac == nil {
		return errorf(ErrSequence, "ProtectInit() not called")
	}
	m.mac.Write(data)
	return nil
}

func (m *hmacMode) ProtectFinal() []byte {
	tag := m.mac.Sum(nil)
	m.mac = nil
	return tag[:m.TagSize()]
}

func (m *hmacMode) ProtectOneShot(data, key []byte) ([]byte, Error) {
	if key != nil {
		if err := m.SetKey(key); err != nil {
			return nil, err
		}
	}
	if err := m.ProtectInit(); err != nil {
		return nil, err
	}
	if err := m.ProtectUpdate(data); err != nil {
		return nil, err
	}
	return m.ProtectFinal(), nil
}
