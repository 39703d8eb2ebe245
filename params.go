package bes

// Registry of named scheme configurations.  A name fixes the scheme,
// the session/payload modes and the KDM stack; resolution is a pure
// function of the name.

type regEntry struct {
	name      string
	newScheme func(user UserID, nbUsers uint32) (Scheme, Error)
}

func ctrKDM(hf HashFunc) (KDM, Error) {
	kdf, err := NewKDF(KDFCounter, NewHMAC(hf), 16, nil)
	if err != nil {
		return nil, err
	}
	return NewTwoStepKDM(NewHMAC(hf), kdf)
}

func nnlEntry(name string, bc func() BlockCipher, hf HashFunc) regEntry {
	return regEntry{name, func(user UserID, nbUsers uint32) (Scheme, Error) {
		kdm, err := ctrKDM(hf)
		if err != nil {
			return nil, err
		}
		return NewNNLSD(user, nbUsers, NewCTR(bc()), NewCTR(bc()), kdm)
	}}
}

func spbeEntry(name string, bc func() BlockCipher, hf HashFunc) regEntry {
	return regEntry{name, func(user UserID, nbUsers uint32) (Scheme, Error) {
		kdm, err := ctrKDM(hf)
		if err != nil {
			return nil, err
		}
		return NewSPBE(user, nbUsers, NewCTR(bc()), NewCTR(bc()), kdm)
	}}
}

var registry []regEntry = []regEntry{
	nnlEntry("NNL-SD_AES256-CTR_HMAC-SHA256", NewAES256, SHA2_256),
	nnlEntry("NNL-SD_AES128-CTR_HMAC-SHA256", NewAES128, SHA2_256),
	nnlEntry("NNL-SD_AES256-CTR_HMAC-SHAKE256", NewAES256, SHAKE256),
	spbeEntry("SPBE_AES256-CTR_HMAC-SHA256", NewAES256, SHA2_256),
	spbeEntry("SPBE_AES128-CTR_HMAC-SHA256", NewAES128, SHA2_256),
	spbeEntry("SPBE_AES256-CTR_HMAC-SHAKE256", NewAES256, SHAKE256),
}

// Lists the names of the registered scheme configurations.
func ListNames() []string {
	ret := make([]string, len(registry))
	for i, entry := range registry {
		ret[i] = entry.name
	}
	return ret
}

// Returns a party's scheme instance for the named configuration.
func NewSchemeFromName(name string, user UserID, nbUsers uint32) (
	Scheme, Error) {
	for _, entry := range registry {
		if entry.name == name {
			return entry.newScheme(user, nbUsers)
		}
	}
	return nil, errorf(ErrParameters, "%s is not a known scheme name", name)
}
