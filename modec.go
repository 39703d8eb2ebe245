package bes

// The confidentiality modes used to encrypt session keys and payloads.

import (
	"github.com/templexxx/xor"
)

// A ModeC protects data in confidentiality.  Encryption is streamed
// through Init/Update/Final; the one-shot helpers bundle the three and
// are the only reentrant entry points.
//
// CTR is length-preserving: the output of Update has the size of its
// input.  ECB and CBC buffer incomplete blocks across Update calls and
// fail at Final when a partial block remains.
type ModeC interface {
	Name() string
	KeySize() int   // key size in bytes
	BlockSize() int // block size in bytes

	// Loads the key used by the following calls.
	SetKey(key []byte) Error

	EncryptInit(iv []byte) Error
	EncryptUpdate(plaintext []byte) ([]byte, Error)
	EncryptFinal() ([]byte, Error)

	DecryptInit(iv []byte) Error
	DecryptUpdate(ciphertext []byte) ([]byte, Error)
	DecryptFinal() ([]byte, Error)

	// One-shot encryption.  A non-nil key overrides the loaded key.
	EncryptOneShot(iv, plaintext, key []byte) ([]byte, Error)

	// One-shot decryption.  A non-nil key overrides the loaded key.
	DecryptOneShot(iv, ciphertext, key []byte) ([]byte, Error)
}

// CTR mode from NIST SP 800-38A.  The counter block is the IV,
// incremented by one (big endian over the full block) per keystream
// block.  Leftover keystream is kept across Update calls.
type ctrMode struct {
	bc     BlockCipher
	iv     []byte
	stream []byte
}

func NewCTR(bc BlockCipher) ModeC {
	return &ctrMode{bc: bc}
}

func (m *ctrMode) Name() string   { return "CTR" }
func (m *ctrMode) KeySize() int   { return m.bc.KeySize() }
func (m *ctrMode) BlockSize() int { return m.bc.BlockSize() }

func (m *ctrMode) SetKey(key []byte) Error {
	return m.bc.SetKey(key)
}

func (m *ctrMode) EncryptInit(iv []byte) Error {
	if len(iv) != m.bc.BlockSize() {
		return errorf(ErrParameters, "IV should have length %d",
			m.bc.BlockSize())
	}
	m.iv = make([]byte, len(iv))
	copy(m.iv, iv)
	m.stream = nil
	return nil
}

func (m *ctrMode) EncryptUpdate(plaintext []byte) ([]byte, Error) {
	ciphertext := make([]byte, len(plaintext))
	offset := 0
	for offset < len(plaintext) {
		if len(m.stream) == 0 {
			m.stream = m.bc.Encrypt(m.iv)
			incrementBlock(m.iv)
		}
		n := len(m.stream)
		if rest := len(plaintext) - offset; rest < n {
			n = rest
		}
		xor.BytesSameLen(ciphertext[offset:offset+n],
			plaintext[offset:offset+n], m.stream[:n])
		m.stream = m.stream[n:]
		offset += n
	}
	return ciphertext, nil
}

func (m *ctrMode) EncryptFinal() ([]byte, Error) {
	return nil, nil
}

func (m *ctrMode) DecryptInit(iv []byte) Error { return m.EncryptInit(iv) }

func (m *ctrMode) DecryptUpdate(ciphertext []byte) ([]byte, Error) {
	return m.EncryptUpdate(ciphertext)
}

func (m *ctrMode) DecryptFinal() ([]byte, Error) { return nil, nil }

func (m *ctrMode) EncryptOneShot(iv, plaintext, key []byte) ([]byte, Error) {
	return oneShot(m, m.EncryptInit, m.EncryptUpdate, m.EncryptFinal,
		iv, plaintext, key)
}

func (m *ctrMode) DecryptOneShot(iv, ciphertext, key []byte) ([]byte, Error) {
	return oneShot(m, m.DecryptInit, m.DecryptUpdate, m.DecryptFinal,
		iv, ciphertext, key)
}

// Adds one to the block, big endian.
func incrementBlock(block []byte) {
	for i := len(block) - 1; i >= 0; i-- {
		block[i]++
		if block[i] != 0 {
			break
		}
	}
}

func oneShot(m ModeC, init func([]byte) Error,
	update func([]byte) ([]byte, Error), final func() ([]byte, Error),
	iv, data, key []byte) ([]byte, Error) {
	if key != nil {
		if err := m.SetKey(key); err != nil {
			return nil, err
		}
	}
	if err := init(iv); err != nil {
		return nil, err
	}
	out, err := update(data)
	if err != nil {
		return nil, err
	}
	tail, err := final()
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}

// ECB mode from NIST SP 800-38A.  No IV; a nil IV is accepted at Init.
type ecbMode struct {
	bc  BlockCipher
	buf []byte // incomplete block carried between updates
}

func NewECB(bc BlockCipher) ModeC {
	return &ecbMode{bc: bc}
}

func (m *ecbMode) Name() string   { return "ECB" }
func (m *ecbMode) KeySize() int   { return m.bc.KeySize() }
func (m *ecbMode) BlockSize() int { return m.bc.BlockSize() }

func (m *ecbMode) SetKey(key []byte) Error {
	return m.bc.SetKey(key)
}

func (m *ecbMode) EncryptInit(iv []byte) Error {
	if iv != nil {
		return errorf(ErrParameters, "ECB does not take an IV")
	}
	m.buf = nil
	return nil
}

func (m *ecbMode) EncryptUpdate(plaintext []byte) ([]byte, Error) {
	return m.update(plaintext, m.bc.Encrypt)
}

func (m *ecbMode) EncryptFinal() ([]byte, Error) {
	if len(m.buf) != 0 {
		return nil, errorf(ErrParameters, "incomplete trailing block")
	}
	return nil, nil
}

func (m *ecbMode) DecryptInit(iv []byte) Error { return m.EncryptInit(iv) }

func (m *ecbMode) DecryptUpdate(ciphertext []byte) ([]byte, Error) {
	return m.update(ciphertext, m.bc.Decrypt)
}

func (m *ecbMode) DecryptFinal() ([]byte, Error) { return m.EncryptFinal() }

// Feeds data block-wise through proc, buffering a trailing partial block.
func (m *ecbMode) update(data []byte, proc func([]byte) []byte) (
	[]byte, Error) {
	bs := m.bc.BlockSize()
	var out []byte
	offset := 0

	if len(m.buf) > 0 { // complete a previously buffered block
		n := bs - len(m.buf)
		if n > len(data) {
			n = len(data)
		}
		m.buf = append(m.buf, data[:n]...)
		offset += n
		if len(m.buf) == bs {
			out = append(out, proc(m.buf)...)
			m.buf = nil
		}
	}

	for len(data)-offset >= bs {
		out = append(out, proc(data[offset:offset+bs])...)
		offset += bs
	}

	if offset < len(data) {
		m.buf = append(m.buf, data[offset:]...)
	}
	return out, nil
}

func (m *ecbMode) EncryptOneShot(iv, plaintext, key []byte) ([]byte, Error) {
	return oneShot(m, m.EncryptInit, m.EncryptUpdate, m.EncryptFinal,
		iv, plaintext, key)
}

func (m *ecbMode) DecryptOneShot(iv, ciphertext, key []byte) ([]byte, Error) {
	return oneShot(m, m.DecryptInit, m.DecryptUpdate, m.DecryptFinal,
		iv, ciphertext, key)
}

// CBC mode from NIST SP 800-38A.
type cbcMode struct {
	bc    BlockCipher
	buf   []byte // incomplete block carried between updates
	chain []byte // previous ciphertext block
}

func NewCBC(bc BlockCipher) ModeC {
	return &cbcMode{bc: bc}
}

func (m *cbcMode) Name() string   { return "CBC" }
func (m *cbcMode) KeySize() int   { return m.bc.KeySize() }
func (m *cbcMode) BlockSize() int { return m.bc.BlockSize() }

func (m *cbcMode) SetKey(key []byte) Error {
	return m.bc.SetKey(key)
}

func (m *cbcMode) EncryptInit(iv []byte) Error {
	if len(iv) != m.bc.BlockSize() {
		return errorf(ErrParameters, "IV should have length %d",
			m.bc.BlockSize())
	}
	m.chain = make([]byte, len(iv))
	copy(m.chain, iv)
	m.buf = nil
	return nil
}

func (m *cbcMode) EncryptUpdate(plaintext []byte) ([]byte, Error) {
	return m.update(plaintext, m.encryptBlock)
}

func (m *cbcMode) encryptBlock(block []byte) []byte {
	x := make([]byte, len(block))
	xor.BytesSameLen(x, block, m.chain)
	m.chain = m.bc.Encrypt(x)
	return m.chain
}

func (m *cbcMode) EncryptFinal() ([]byte, Error) {
	if len(m.buf) != 0 {
		return nil, errorf(ErrParameters, "incomplete trailing block")
	}
	return nil, nil
}

func (m *cbcMode) DecryptInit(iv []byte) Error { return m.EncryptInit(iv) }

func (m *cbcMode) DecryptUpdate(ciphertext []byte) ([]byte, Error) {
	return m.update(ciphertext, m.decryptBlock)
}

func (m *cbcMode) decryptBlock(block []byte) []byte {
	p := m.bc.Decrypt(block)
	xor.BytesSameLen(p, p, m.chain)
	m.chain = append(m.chain[:0:0], block...)
	return p
}

func (m *cbcMode) DecryptFinal() ([]byte, Error) { return m.EncryptFinal() }

func (m *cbcMode) update(data []byte, proc func([]byte) []byte) (
	[]byte, Error) {
	bs := m.bc.BlockSize()
	var out []byte
	offset := 0

	if len(m.buf) > 0 {
		n := bs - len(m.buf)
		if n > len(data) {
			n = len(data)
		}
		m.buf = append(m.buf, data[:n]...)
		offset += n
		if len(m.buf) == bs {
			out = append(out, proc(m.buf)...)
			m.buf = nil
		}
	}

	for len(data)-offset >= bs {
		out = append(out, proc(data[offset:offset+bs])...)
		offset += bs
	}

	if offset < len(data) {
		m.buf = append(m.buf, data[offset:]...)
	}
	return out, nil
}

func (m *cbcMode) EncryptOneShot(iv, plaintext, key []byte) ([]byte, Error) {
	return oneShot(m, m.EncryptInit, m.EncryptUpdate, m.EncryptFinal,
		iv, plaintext, key)
}

func (m *cbcMode) DecryptOneShot(iv, ciphertext, key []byte) ([]byte, Error) {
	return oneShot(m, m.DecryptInit, m.DecryptUpdate, m.DecryptFinal,
		iv, ciphertext, key)
}
