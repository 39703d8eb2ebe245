package bes

import (
	"strings"
)

// A KDM derives keys in two steps: Extract seeds an internal key
// derivation key from a shared secret, Expand produces pseudo-random
// keys under it.  Successive Expand calls under one Extract are
// independent; Expand before Extract fails with a Sequence error.
//
// A KDM is stateful.  Scheme instances must not share one KDM across
// concurrent calls; give each instance its own.
type KDM interface {
	Name() string

	// Seeds the key derivation key.  A nil salt selects the all-zero
	// default of SP800-56C.
	Extract(sharedSecret, salt []byte) Error

	// Derives outBits bits under the extracted key.  label and context
	// feed the FixedInfo of the underlying KDF; iv is refused.
	Expand(outBits uint32, label, context, iv []byte) ([]byte, Error)
}

// Two-step KDM from NIST SP800-56C rev 2: extraction through an
// integrity mode, expansion through an SP800-108 KDF over the same PRF.
type twoStepKDM struct {
	extract   ModeI
	expand    *KDF
	extracted bool
}

// Returns an SP800-56C two-step KDM.  The extraction primitive and the
// KDF must be built on the same PRF.
func NewTwoStepKDM(extract ModeI, expand *KDF) (KDM, Error) {
	if extract.Name() != "HMAC" {
		return nil, errorf(ErrNotImplemented,
			"only HMAC extraction is supported")
	}
	if !strings.Contains(expand.Name(), extract.FullName()) {
		return nil, errorf(ErrParameters,
			"extraction primitive %s does not match KDF %s",
			extract.FullName(), expand.Name())
	}
	return &twoStepKDM{extract: extract, expand: expand}, nil
}

func (kdm *twoStepKDM) Name() string {
	return "SP800-56C-" + kdm.extract.FullName() + "-" + kdm.expand.Name()
}

func (kdm *twoStepKDM) Extract(sharedSecret, salt []byte) Error {
	if salt == nil {
		salt = make([]byte, kdm.extract.BlockSize())
	}
	innerKey, err := kdm.extract.ProtectOneShot(sharedSecret, salt)
	if err != nil {
		return err
	}
	if err := kdm.expand.SetKey(innerKey); err != nil {
		return err
	}
	kdm.extracted = true
	return nil
}

func (kdm *twoStepKDM) Expand(outBits uint32, label, context, iv []byte) (
	[]byte, Error) {
	if !kdm.extracted {
		return nil, errorf(ErrSequence, "Expand() before Extract()")
	}
	if iv != nil {
		return nil, errorf(ErrNotImplemented,
			"IV-carrying expansion is not supported")
	}
	return kdm.expand.OneShot(outBits, label, context, nil, nil)
}
