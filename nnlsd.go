package bes

// The NNL subset-difference scheme from "Revocation and Tracing Schemes
// for Stateless Receivers" (Naor, Naor, Lotspiech; eprint 2001/059).
//
// The paper leaves a few details open; this implementation fixes them
// the way the reference library does:
//   - G_L, G_M and G_R are KDM expansions under an extraction of the
//     current label,
//   - the node labels are derived from a master secret rather than
//     drawn at random,
//   - session keys are encrypted with a confidentiality mode instead of
//     a bare block cipher, decoupling key size from block size,
//   - all encryptions of one session key share the same IV (the keys
//     differ),
//   - the global key for the empty revocation set is G_M(label of the
//     root).

var (
	nnlSetupSalt  = []byte("Setup")
	nnlSetupInfo  = []byte("Label")
	nnlUserSalt   = []byte("UserLabels")
	nnlInfoLeft   = []byte("Left")
	nnlInfoMiddle = []byte("Middle")
	nnlInfoRight  = []byte("Right")
)

// A stored subset-difference tuple: the label of S_{i,j} at a member.
type sdTuple struct {
	i, j  uint32
	label []byte
}

// One party's view of the NNL-SD scheme over a complete binary tree of
// nbUsers leaves.
type NNLSD struct {
	user          UserID
	nbUsers       uint32
	treeDepth     uint32
	keySize       int // session-key and label size in bytes
	nodeIndexSize int // wire size of a node index in bytes
	sessionMode   ModeC
	payloadMode   ModeC
	kdm           KDM

	masterKey  []byte
	treeLabels [][]byte // labels of the internal nodes; master only
	tuples     []sdTuple // parsed key material; member only
}

// Returns a party's NNL-SD scheme instance.  nbUsers must be a power of
// two; user is Master or a member identifier.  The session mode
// encrypts session keys (its key size fixes the label size), the
// payload mode encrypts the payload under the session key.
func NewNNLSD(user UserID, nbUsers uint32, sessionMode, payloadMode ModeC,
	kdm KDM) (*NNLSD, Error) {
	depth, ok := log2NbUsers(nbUsers)
	if !ok {
		return nil, errorf(ErrParameters,
			"number of users should be a power of two, got %d", nbUsers)
	}
	if err := checkUser(user, nbUsers); err != nil {
		return nil, err
	}
	return &NNLSD{
		user:          user,
		nbUsers:       nbUsers,
		treeDepth:     depth,
		keySize:       sessionMode.KeySize(),
		nodeIndexSize: int(depth+1+7) / 8,
		sessionMode:   sessionMode,
		payloadMode:   payloadMode,
		kdm:           kdm,
	}, nil
}

func (bes *NNLSD) Name() string    { return "NNL-SD" }
func (bes *NNLSD) User() UserID    { return bes.user }
func (bes *NNLSD) NbUsers() uint32 { return bes.nbUsers }

func (bes *NNLSD) SetMasterKey(key []byte) Error {
	if bes.user != Master {
		return errorf(ErrSequence, "only the master holds the master key")
	}
	bes.masterKey = make([]byte, len(key))
	copy(bes.masterKey, key)
	return nil
}

// Derives the label of every internal node from the master secret.
func (bes *NNLSD) Setup() Error {
	if bes.user != Master || bes.masterKey == nil {
		return errorf(ErrSequence, "Setup() requires a master key")
	}
	if err := bes.kdm.Extract(bes.masterKey, nnlSetupSalt); err != nil {
		return err
	}
	bes.treeLabels = make([][]byte, bes.nbUsers-1)
	for i := uint32(0); i < bes.nbUsers-1; i++ {
		info := append(append([]byte{}, nnlSetupInfo...),
			encodeUint64(uint64(i), bes.nodeIndexSize)...)
		label, err := bes.kdm.Expand(uint32(bes.keySize)*8, info, nil, nil)
		if err != nil {
			return err
		}
		bes.treeLabels[i] = label
	}
	log.Logf("NNL-SD setup: derived %d node labels", bes.nbUsers-1)
	return nil
}

// G_L and G_R: the two child labels of a label.
func (bes *NNLSD) childLabels(label []byte) (left, right []byte, err Error) {
	if err = bes.kdm.Extract(label, nnlUserSalt); err != nil {
		return
	}
	if left, err = bes.kdm.Expand(uint32(bes.keySize)*8,
		nnlInfoLeft, nil, nil); err != nil {
		return
	}
	right, err = bes.kdm.Expand(uint32(bes.keySize)*8, nnlInfoRight, nil, nil)
	return
}

// G_M: the subset key of a label.
func (bes *NNLSD) middleKey(label []byte) ([]byte, Error) {
	if err := bes.kdm.Extract(label, nnlUserSalt); err != nil {
		return nil, err
	}
	return bes.kdm.Expand(uint32(bes.keySize)*8, nnlInfoMiddle, nil, nil)
}

// Number of labels in a member's key material.
func (bes *NNLSD) nbUserLabels() int {
	n := int(bes.treeDepth)
	return 1 + n*(n+1)/2
}

// Issues the key material of a member: the global key followed by, for
// every subtree T on the member's root-to-leaf path, the labels of the
// siblings hanging off the member's path inside T.
func (bes *NNLSD) UserKey(user UserID) ([]byte, Error) {
	if bes.user != Master {
		return nil, errorf(ErrSequence, "only the master issues keys")
	}
	if user < 0 || uint32(user) >= bes.nbUsers {
		return nil, errorf(ErrParameters, "user %d outside [0,%d)",
			user, bes.nbUsers)
	}
	if bes.treeLabels == nil {
		return nil, errorf(ErrSequence, "UserKey() before Setup()")
	}

	material := make([]byte, 0, bes.nbUserLabels()*bes.keySize)

	// Global key, used when nobody is revoked.
	globalKey, err := bes.middleKey(bes.treeLabels[0])
	if err != nil {
		return nil, err
	}
	material = append(material, globalKey...)

	path, _ := getPath(0, userToLeaf(bes.nbUsers, uint32(user)))

	rootT := uint32(0) // root of the current subtree T_i
	for i := uint32(0); i < bes.treeDepth; i++ {
		currentLabel := bes.treeLabels[rootT]
		for j := i; j < bes.treeDepth; j++ {
			left, right, err := bes.childLabels(currentLabel)
			if err != nil {
				return nil, err
			}
			if path[j] == 0 { // user is on the left: emit the right label
				material = append(material, right...)
				currentLabel = left
			} else {
				material = append(material, left...)
				currentLabel = right
			}
		}
		if path[i] == 0 {
			rootT = leftChild(rootT)
		} else {
			rootT = rightChild(rootT)
		}
	}
	return material, nil
}

// Parses issued key material.  The chunks arrive in the derivation
// order of UserKey; the parser walks the same (i,j) schedule to tag
// each label with its subset.
func (bes *NNLSD) SetUserKey(material []byte) Error {
	if bes.user == Master {
		return errorf(ErrSequence, "the master does not hold user keys")
	}
	if len(material) != bes.nbUserLabels()*bes.keySize {
		return errorf(ErrParameters,
			"key material should have length %d, got %d",
			bes.nbUserLabels()*bes.keySize, len(material))
	}

	path, _ := getPath(0, userToLeaf(bes.nbUsers, uint32(bes.user)))

	bes.tuples = bes.tuples[:0]
	bes.tuples = append(bes.tuples, sdTuple{0, 0,
		append([]byte{}, material[:bes.keySize]...)})

	var i, j, depthI, depthJ uint32
	for offset := bes.keySize; offset <= len(material)-bes.keySize; {
		label := append([]byte{}, material[offset:offset+bes.keySize]...)
		offset += bes.keySize

		if path[depthJ] == 0 { // user is left, the label covers the right
			bes.tuples = append(bes.tuples, sdTuple{i, rightChild(j), label})
			j = leftChild(j)
		} else {
			bes.tuples = append(bes.tuples, sdTuple{i, leftChild(j), label})
			j = rightChild(j)
		}
		depthJ++

		if depthJ >= bes.treeDepth { // leaf reached: next subtree
			if path[depthI] == 0 {
				i = leftChild(i)
			} else {
				i = rightChild(i)
			}
			j = i
			depthI++
			depthJ = depthI
		}
	}
	return nil
}

// Derives L_{i,j} by walking from the label of node from down to node j.
func (bes *NNLSD) subsetKey(label []byte, from, j uint32) ([]byte, Error) {
	path, ok := getPath(from, j)
	if !ok {
		return nil, errorf(ErrInvariant, "node %d is not below node %d",
			j, from)
	}
	for _, direction := range path {
		left, right, err := bes.childLabels(label)
		if err != nil {
			return nil, err
		}
		if direction == 0 {
			label = left
		} else {
			label = right
		}
	}
	return bes.middleKey(label)
}

func (bes *NNLSD) Encrypt(plaintext []byte, revoked []UserID,
	sessionIV, ciphertextIV, sessionKey []byte) (
	ciphertext, header []byte, err Error) {
	if bes.user != Master {
		return nil, nil, errorf(ErrSequence, "only the master encrypts")
	}
	if bes.treeLabels == nil {
		return nil, nil, errorf(ErrSequence, "Encrypt() before Setup()")
	}
	if sessionKey == nil || sessionIV == nil {
		return nil, nil, errorf(ErrNotImplemented,
			"a session key and a session IV are required")
	}
	if ciphertextIV == nil {
		ciphertextIV = sessionIV
	}
	revokedLeaves, err := checkRevoked(revoked, bes.nbUsers)
	if err != nil {
		return nil, nil, err
	}

	if len(revokedLeaves) == 0 {
		globalKey, err := bes.middleKey(bes.treeLabels[0])
		if err != nil {
			return nil, nil, err
		}
		enc, err := bes.sessionMode.EncryptOneShot(
			sessionIV, sessionKey, globalKey)
		if err != nil {
			return nil, nil, err
		}
		ciphertext = append(ciphertext, enc...)
	}

	subsets := buildSubsets(buildSteinerTree(bes.nbUsers, revokedLeaves))
	for _, s := range subsets {
		key, err := bes.subsetKey(bes.treeLabels[s.i], s.i, s.j)
		if err != nil {
			return nil, nil, err
		}
		header = append(header,
			encodeUint64(uint64(s.i), bes.nodeIndexSize)...)
		header = append(header,
			encodeUint64(uint64(s.j), bes.nodeIndexSize)...)
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
	return ciphertext, header, nil
}

// Recovers the session key, or nil when this member is revoked.
func (bes *NNLSD) decryptSessionKey(ciphertext, header, sessionIV []byte) (
	[]byte, Error) {
	if bes.user == Master {
		return nil, errorf(ErrSequence, "the master does not decrypt")
	}
	if bes.tuples == nil {
		return nil, errorf(ErrSequence, "Decrypt() before SetUserKey()")
	}
	if sessionIV == nil {
		return nil, errorf(ErrNotImplemented, "a session IV is required")
	}

	if len(header) == 0 { // nobody revoked: global key
		if len(ciphertext) < bes.keySize {
			return nil, errorf(ErrParameters, "ciphertext too short")
		}
		return bes.sessionMode.DecryptOneShot(sessionIV,
			ciphertext[:bes.keySize], bes.tuples[0].label)
	}

	// Scan the header for a subset covering this member.
	var encKey []byte
	var hi, hj uint32
	keyIndex := 0
	for offset := 0; encKey == nil &&
		offset <= len(header)-2*bes.nodeIndexSize; {
		i := uint32(decodeUint64(header[offset : offset+bes.nodeIndexSize]))
		offset += bes.nodeIndexSize
		j := uint32(decodeUint64(header[offset : offset+bes.nodeIndexSize]))
		offset += bes.nodeIndexSize

		if userInSubset(uint32(bes.user), i, j, bes.nbUsers) {
			if len(ciphertext) < (keyIndex+1)*bes.keySize {
				return nil, errorf(ErrParameters, "ciphertext too short")
			}
			encKey = ciphertext[keyIndex*bes.keySize : (keyIndex+1)*bes.keySize]
			hi, hj = i, j
		}
		keyIndex++
	}

	if encKey == nil { // revoked
		return nil, nil
	}

	// Find the stored tuple (i, j') with j' on the path from i to j,
	// and walk its label down to j.
	for _, t := range bes.tuples[1:] {
		if t.i != hi {
			continue
		}
		if _, ok := getPath(t.j, hj); !ok {
			continue
		}
		key, err := bes.subsetKey(t.label, t.j, hj)
		if err != nil {
			return nil, err
		}
		return bes.sessionMode.DecryptOneShot(sessionIV, encKey, key)
	}
	return nil, errorf(ErrInvariant,
		"header subset (%d,%d) covers user %d but no stored tuple matches",
		hi, hj, bes.user)
}

func (bes *NNLSD) Decrypt(ciphertext, header, sessionIV, ciphertextIV []byte) (
	[]byte, bool, Error) {
	if ciphertextIV == nil {
		ciphertextIV = sessionIV
	}

	sessionKey, err := bes.decryptSessionKey(ciphertext, header, sessionIV)
	if err != nil {
		return nil, false, err
	}
	if sessionKey == nil { // revoked
		return nil, false, nil
	}

	nbSubsets := len(header) / (2 * bes.nodeIndexSize)
	if nbSubsets == 0 { // empty header: a single global-key encryption
		nbSubsets = 1
	}
	if len(ciphertext) < nbSubsets*bes.keySize {
		return nil, false, errorf(ErrParameters, "ciphertext too short")
	}
	plaintext, err := bes.payloadMode.DecryptOneShot(ciphertextIV,
		ciphertext[nbSubsets*bes.keySize:], sessionKey)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}
