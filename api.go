// Go implementation of two broadcast-encryption schemes: the
// Naor-Naor-Lotspiech subset-difference scheme (NNL-SD, eprint 2001/059)
// and sum-product broadcast encryption (SPBE), in which the authorized
// set is covered by prime implicants of a Boolean function.
//
// A single broadcaster (the master) encrypts one message for N
// pre-registered users so that any chosen subset of them is revoked:
// authorized users recover the plaintext, revoked users learn nothing.
package bes

// Identifies a party: the broadcaster or a member.
type UserID int32

// The broadcaster.  Only the master can run Setup, UserKey and Encrypt.
const Master UserID = -1

// A Scheme is one party's view of a broadcast-encryption scheme.  The
// master holds the master secret and the derived label material; a
// member holds the key material issued to it.  Calling an operation of
// the other role fails with a Sequence error.
type Scheme interface {
	Name() string
	User() UserID
	NbUsers() uint32

	// Loads the master secret.  Master only.
	SetMasterKey(key []byte) Error

	// Derives the label material from the master secret.  Master only.
	Setup() Error

	// Issues the key material of the given member.  Master only.
	UserKey(user UserID) ([]byte, Error)

	// Parses and stores issued key material.  Member only.
	SetUserKey(material []byte) Error

	// Encrypts plaintext so that every user outside revoked can decrypt.
	// The session key is encrypted once per cover element under
	// sessionIV; the payload is encrypted under the session key with
	// ciphertextIV, which defaults to sessionIV.  Master only.
	// Returns the ciphertext and the header holding the cover.
	Encrypt(plaintext []byte, revoked []UserID,
		sessionIV, ciphertextIV, sessionKey []byte) (
		ciphertext, header []byte, err Error)

	// Decrypts a broadcast.  Returns (plaintext, true) when this member
	// is covered and (nil, false) when it is revoked; revocation is not
	// an error.  Member only.
	Decrypt(ciphertext, header, sessionIV, ciphertextIV []byte) (
		[]byte, bool, Error)
}

// Returns log2(nbUsers), or false when nbUsers is not a power of two of
// at least 2.
func log2NbUsers(nbUsers uint32) (uint32, bool) {
	if nbUsers < 2 || nbUsers&(nbUsers-1) != 0 {
		return 0, false
	}
	var n uint32
	for 1<<uint(n) < nbUsers {
		n++
	}
	return n, true
}

// Checks the user argument of a scheme constructor.
func checkUser(user UserID, nbUsers uint32) Error {
	if user != Master && (user < 0 || uint32(user) >= nbUsers) {
		return errorf(ErrParameters, "user should be Master or in [0,%d)",
			nbUsers)
	}
	return nil
}

// Checks the revocation set and converts it to leaf-order indices.
func checkRevoked(revoked []UserID, nbUsers uint32) ([]uint32, Error) {
	ret := make([]uint32, len(revoked))
	for k, user := range revoked {
		if user < 0 || uint32(user) >= nbUsers {
			return nil, errorf(ErrParameters,
				"revoked user %d outside [0,%d)", user, nbUsers)
		}
		ret[k] = uint32(user)
	}
	return ret, nil
}
