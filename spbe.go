package bes

// Sum-product broadcast encryption: the authorized set is a Boolean
// function of the log2(N) bits of the user identifier, decomposed into
// a cover of prime implicants.  Each member holds one derived key per
// subset of bit positions; a broadcast encrypts the session key once
// per implicant of the cover.

import (
	"math/big"
)

var spbeSetupSalt = []byte("Derivation of K_PRF")

// A member's key for one implicant shape.
type spbeKey struct {
	code uint64
	key  []byte
}

// One party's view of the SPBE scheme.
type SPBE struct {
	user        UserID
	nbUsers     uint32
	locality    int // log2(nbUsers): number of identifier bits
	keySize     int
	sessionMode ModeC
	payloadMode ModeC
	kdm         KDM

	masterKey []byte
	labels    [][2][]byte // per-bit label inputs; master only
	keys      []spbeKey   // per-implicant derived keys; member only
	keyByCode map[uint64][]byte
}

// Returns a party's SPBE scheme instance.  nbUsers must be a power of
// two; user is Master or a member identifier.  Members never use the
// KDM, so it may be nil for them.
func NewSPBE(user UserID, nbUsers uint32, sessionMode, payloadMode ModeC,
	kdm KDM) (*SPBE, Error) {
	locality, ok := log2NbUsers(nbUsers)
	if !ok {
		return nil, errorf(ErrParameters,
			"number of users should be a power of two, got %d", nbUsers)
	}
	if err := checkUser(user, nbUsers); err != nil {
		return nil, err
	}
	return &SPBE{
		user:        user,
		nbUsers:     nbUsers,
		locality:    int(locality),
		keySize:     sessionMode.KeySize(),
		sessionMode: sessionMode,
		payloadMode: payloadMode,
		kdm:         kdm,
	}, nil
}

func (bes *SPBE) Name() string    { return "SPBE" }
func (bes *SPBE) User() UserID    { return bes.user }
func (bes *SPBE) NbUsers() uint32 { return bes.nbUsers }

func (bes *SPBE) SetMasterKey(key []byte) Error {
	if bes.user != Master {
		return errorf(ErrSequence, "only the master holds the master key")
	}
	bes.masterKey = make([]byte, len(key))
	copy(bes.masterKey, key)
	return nil
}

// Seeds the KDM from the master secret and lays out the label inputs:
// for each bit position i, labels[i][b] is the 8-byte big-endian i
// followed by the byte b.  These are KDM context material, not keys.
func (bes *SPBE) Setup() Error {
	if bes.user != Master || bes.masterKey == nil {
		return errorf(ErrSequence, "Setup() requires a master key")
	}
	if err := bes.kdm.Extract(bes.masterKey, spbeSetupSalt); err != nil {
		return err
	}
	bes.labels = make([][2][]byte, bes.locality)
	for i := range bes.labels {
		bes.labels[i][0] = append(encodeUint64(uint64(i), 8), 0x00)
		bes.labels[i][1] = append(encodeUint64(uint64(i), 8), 0x01)
	}
	return nil
}

// Bit i of x, MSB first over the identifier width.
func (bes *SPBE) bit(x uint32, i int) int {
	return int(x>>uint(bes.locality-i-1)) & 1
}

// Concatenation of the labels selected by pick: for every bit position
// i, in ascending order, for which pick returns ok, the label of the
// bit value b that pick returns.
func (bes *SPBE) concatLabels(pick func(i int) (int, bool)) []byte {
	var concat []byte
	for i := 0; i < bes.locality; i++ {
		if b, ok := pick(i); ok {
			concat = append(concat, bes.labels[i][b]...)
		}
	}
	return concat
}

// Issues the key material of a member: for every mask over the bit
// positions, the expansion of the concatenated labels of the member's
// bits at the masked positions.  N keys of keySize bytes.
func (bes *SPBE) UserKey(user UserID) ([]byte, Error) {
	if bes.user != Master {
		return nil, errorf(ErrSequence, "only the master issues keys")
	}
	if user < 0 || uint32(user) >= bes.nbUsers {
		return nil, errorf(ErrParameters, "user %d outside [0,%d)",
			user, bes.nbUsers)
	}
	if bes.labels == nil {
		return nil, errorf(ErrSequence, "UserKey() before Setup()")
	}

	material := make([]byte, 0, int(bes.nbUsers)*bes.keySize)
	for mask := uint32(0); mask < bes.nbUsers; mask++ {
		m := mask
		concat := bes.concatLabels(func(i int) (int, bool) {
			if bes.bit(m, i) == 1 {
				return bes.bit(uint32(user), i), true
			}
			return 0, false
		})
		key, err := bes.kdm.Expand(uint32(bes.keySize)*8, concat, nil, nil)
		if err != nil {
			return nil, err
		}
		material = append(material, key...)
	}
	return material, nil
}

// Parses issued key material: chunk m is the key of the implicant that
// fixes position i to the member's bit i exactly when mask bit i is
// set, and stars it otherwise.
func (bes *SPBE) SetUserKey(material []byte) Error {
	if bes.user == Master {
		return errorf(ErrSequence, "the master does not hold user keys")
	}
	if len(material) != int(bes.nbUsers)*bes.keySize {
		return errorf(ErrParameters,
			"key material should have length %d, got %d",
			int(bes.nbUsers)*bes.keySize, len(material))
	}

	bes.keys = make([]spbeKey, 0, bes.nbUsers)
	bes.keyByCode = make(map[uint64][]byte, bes.nbUsers)
	for mask := uint32(0); mask < bes.nbUsers; mask++ {
		var fixed0, fixed1 uint64
		for i := 0; i < bes.locality; i++ {
			fixed0 <<= 1
			fixed1 <<= 1
			if bes.bit(mask, i) == 1 {
				if bes.bit(uint32(bes.user), i) == 0 {
					fixed0 |= 1
				} else {
					fixed1 |= 1
				}
			}
		}
		code := fixed0<<uint(bes.locality) | fixed1

		offset := int(mask) * bes.keySize
		key := append([]byte{}, material[offset:offset+bes.keySize]...)
		bes.keys = append(bes.keys, spbeKey{code, key})
		bes.keyByCode[code] = key
	}
	return nil
}

// Size of the header in bits for a cover of the given size.
func (bes *SPBE) headerBits(nbImplicants int) int {
	return (nbImplicants*2 + 1) * bes.locality
}

func (bes *SPBE) Encrypt(plaintext []byte, revoked []UserID,
	sessionIV, ciphertextIV, sessionKey []byte) (
	ciphertext, header []byte, err Error) {
	if bes.user != Master {
		return nil, nil, errorf(ErrSequence, "only the master encrypts")
	}
	if bes.labels == nil {
		return nil, nil, errorf(ErrSequence, "Encrypt() before Setup()")
	}
	if sessionKey == nil || sessionIV == nil {
		return nil, nil, errorf(ErrNotImplemented,
			"a session key and a session IV are required")
	}
	if ciphertextIV == nil {
		ciphertextIV = sessionIV
	}
	revokedUsers, err := checkRevoked(revoked, bes.nbUsers)
	if err != nil {
		return nil, nil, err
	}

	// Truth table of the authorization function.
	tt := make([]int8, bes.nbUsers)
	for i := range tt {
		tt[i] = 1
	}
	for _, user := range revokedUsers {
		tt[user] = 0
	}

	primes := primeImplicants(tt)
	chart, err := implicantChart(primes, tt)
	if err != nil {
		return nil, nil, err
	}
	cover := minimalCover(primes, chart)
	log.Logf("SPBE cover: %d prime implicants, %d selected",
		len(primes), len(cover))

	// The header is one big-endian integer: the cover size on locality
	// bits, then each implicant coding shifted in at the low end, so
	// the codes sit in reverse cover order on the wire.
	hdr := big.NewInt(int64(len(cover)))
	code := new(big.Int)
	for _, im := range cover {
		hdr.Lsh(hdr, uint(2*bes.locality))
		hdr.Or(hdr, code.SetUint64(im.Encode()))

		concat := bes.concatLabels(func(i int) (int, bool) {
			if im.value[i] == star {
				return 0, false
			}
			return int(im.value[i]), true
		})
		key, err := bes.kdm.Expand(uint32(bes.keySize)*8, concat, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		enc, err := bes.sessionMode.EncryptOneShot(sessionIV, sessionKey, key)
		if err != nil {
			return nil, nil, err
		}
		ciphertext = append(ciphertext, enc...)
	}

	payload, err := bes.payloadMode.EncryptOneShot(
		ciphertextIV, plaintext, sessionKey)
	if err != nil {
		return nil, nil, err
	}
	ciphertext = append(ciphertext, payload...)

	bits := bes.headerBits(len(cover))
	if bits%8 != 0 { // left-align: pad the tail with zero bits
		hdr.Lsh(hdr, uint(8-bits%8))
	}
	header = make([]byte, (bits+7)/8)
	hdr.FillBytes(header)
	return ciphertext, header, nil
}

func (bes *SPBE) Decrypt(ciphertext, header, sessionIV, ciphertextIV []byte) (
	[]byte, bool, Error) {
	if bes.user == Master {
		return nil, false, errorf(ErrSequence, "the master does not decrypt")
	}
	if bes.keys == nil {
		return nil, false, errorf(ErrSequence, "Decrypt() before SetUserKey()")
	}
	if sessionIV == nil {
		return nil, false, errorf(ErrNotImplemented,
			"a session IV is required")
	}
	if ciphertextIV == nil {
		ciphertextIV = sessionIV
	}

	if len(header) < (bes.locality+7)/8 {
		return nil, false, errorf(ErrParameters, "header too short")
	}

	// Cover size from the top locality bits.
	nbImplicants := 0
	for i := 0; i < (bes.locality+7)/8; i++ {
		nbImplicants = nbImplicants<<8 | int(header[i])
	}
	if bes.locality%8 != 0 {
		nbImplicants >>= uint(8 - bes.locality%8)
	}

	bits := bes.headerBits(nbImplicants)
	if len(header) != (bits+7)/8 {
		return nil, false, errorf(ErrParameters,
			"header should have length %d, got %d", (bits+7)/8, len(header))
	}

	// The codes are packed in reverse cover order: read them from the
	// low end, filling the cover list from its tail.
	hdr := new(big.Int).SetBytes(header)
	if bits%8 != 0 {
		hdr.Rsh(hdr, uint(8-bits%8))
	}
	mask := new(big.Int).Lsh(big.NewInt(1), uint(2*bes.locality))
	mask.Sub(mask, big.NewInt(1))
	code := new(big.Int)
	implicants := make([]*Implicant, nbImplicants)
	for i := 0; i < nbImplicants; i++ {
		code.And(hdr, mask)
		implicants[nbImplicants-1-i] =
			DecodeImplicant(code.Uint64(), bes.locality)
		hdr.Rsh(hdr, uint(2*bes.locality))
	}

	if len(ciphertext) < nbImplicants*bes.keySize {
		return nil, false, errorf(ErrParameters, "ciphertext too short")
	}

	for i, im := range implicants {
		if !im.Covers(uint32(bes.user)) {
			continue
		}
		key, ok := bes.keyByCode[im.Encode()]
		if !ok {
			return nil, false, errorf(ErrInvariant,
				"implicant %s covers user %d but no stored key matches",
				im, bes.user)
		}
		encKey := ciphertext[i*bes.keySize : (i+1)*bes.keySize]
		sessionKey, err := bes.sessionMode.DecryptOneShot(
			sessionIV, encKey, key)
		if err != nil {
			return nil, false, err
		}
		plaintext, err := bes.payloadMode.DecryptOneShot(ciphertextIV,
			ciphertext[nbImplicants*bes.keySize:], sessionKey)
		if err != nil {
			return nil, false, err
		}
		return plaintext, true, nil
	}
	return nil, false, nil // revoked
}
