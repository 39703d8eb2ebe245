package bes

// SP800-108 key derivation over an integrity-mode PRF.

// Iteration variant of the SP800-108 KDF.
type KDFMode uint8

const (
	// Counter mode: K(i) = PRF(KDK, FixedInfo(i)).
	KDFCounter KDFMode = iota

	// Feedback mode: the previous PRF output is fed back through the
	// FixedInfo of the next iteration.
	KDFFeedback
)

func (m KDFMode) String() string {
	switch m {
	case KDFCounter:
		return "CTR"
	case KDFFeedback:
		return "Feedback"
	}
	return "Unknown"
}

// A FixedInfo formats the PRF input of one KDF iteration.  counter is the
// iteration index (starting at 1), counterBits its encoded width, outBits
// the total derivation size in bits and iv the chaining value (feedback
// mode) or the static IV (counter mode); label and context may be nil.
type FixedInfo func(counter uint32, counterBits int, label, context []byte,
	outBits uint32, iv []byte) []byte

// The FixedInfo layout of SP800-108:
// IV ∥ [counter] ∥ label ∥ 0x00 ∥ context ∥ [outBits]_32.
func DefaultFixedInfo(counter uint32, counterBits int, label, context []byte,
	outBits uint32, iv []byte) []byte {
	info := append([]byte{}, iv...)
	info = append(info, encodeUint64(uint64(counter), counterBits/8)...)
	info = append(info, label...)
	info = append(info, 0x00)
	info = append(info, context...)
	return append(info, encodeUint64(uint64(outBits), 4)...)
}

// The FixedInfo layout of the NIST CAVP test vectors:
// [counter] ∥ IV ∥ label.
func CAVPFixedInfo(counter uint32, counterBits int, label, context []byte,
	outBits uint32, iv []byte) []byte {
	info := encodeUint64(uint64(counter), counterBits/8)
	info = append(info, iv...)
	return append(info, label...)
}

// SP800-108 KDF.  The key derivation key is loaded with SetKey; a
// derivation is an Init, a sequence of Updates adding up to the size
// announced at Init, and a Final.
type KDF struct {
	mode        KDFMode
	prf         ModeI
	counterBits int
	fixedInfo   FixedInfo

	stream   []byte // derived bytes not yet handed out
	counter  uint32
	label    []byte
	context  []byte
	iv       []byte
	outBits  uint32
	leftBits uint32
}

// Returns an SP800-108 KDF in the given mode over the given PRF.  A nil
// fixedInfo selects DefaultFixedInfo.
func NewKDF(mode KDFMode, prf ModeI, counterBits int, fixedInfo FixedInfo) (
	*KDF, Error) {
	if counterBits <= 0 || counterBits > 32 || counterBits%8 != 0 {
		return nil, errorf(ErrParameters,
			"counter size should be a multiple of 8 in (0,32]")
	}
	if fixedInfo == nil {
		fixedInfo = DefaultFixedInfo
	}
	return &KDF{
		mode:        mode,
		prf:         prf,
		counterBits: counterBits,
		fixedInfo:   fixedInfo,
	}, nil
}

func (kdf *KDF) Name() string {
	return "SP800-108-" + kdf.mode.String() + "-" + kdf.prf.FullName()
}

// Loads the key derivation key.
func (kdf *KDF) SetKey(key []byte) Error {
	return kdf.prf.SetKey(key)
}

// Starts a derivation of outBits bits in total.
func (kdf *KDF) Init(outBits uint32, label, context, iv []byte) Error {
	if outBits%8 != 0 {
		return errorf(ErrParameters, "output size should be whole bytes")
	}
	n := outBits/uint32(8*kdf.prf.TagSize()) + 1
	if n > 1<<uint(kdf.counterBits-1) {
		return errorf(ErrParameters, "output size exceeds counter range")
	}
	kdf.label = label
	kdf.context = context
	kdf.iv = append([]byte{}, iv...)
	kdf.counter = 1
	kdf.stream = nil
	kdf.outBits = outBits
	kdf.leftBits = outBits
	return nil
}

// Produces the next bits/8 bytes of the derivation.
func (kdf *KDF) Update(bits uint32) ([]byte, Error) {
	if bits%8 != 0 {
		return nil, errorf(ErrParameters, "output size should be whole bytes")
	}
	if kdf.leftBits < bits {
		return nil, errorf(ErrParameters,
			"derivation exceeds the size announced at Init")
	}
	kdf.leftBits -= bits

	for uint32(len(kdf.stream)) < bits/8 {
		info := kdf.fixedInfo(kdf.counter, kdf.counterBits,
			kdf.label, kdf.context, kdf.outBits, kdf.iv)
		block, err := kdf.prf.ProtectOneShot(info, nil)
		if err != nil {
			return nil, err
		}
		if kdf.mode == KDFFeedback {
			kdf.iv = block
		}
		kdf.stream = append(kdf.stream, block...)
		kdf.counter++
	}

	ret := kdf.stream[:bits/8]
	kdf.stream = kdf.stream[bits/8:]
	return ret, nil
}

// Ends a derivation.  Fails if fewer bits were produced than announced.
func (kdf *KDF) Final() Error {
	if kdf.leftBits > 0 {
		return errorf(ErrParameters, "derivation ended early")
	}
	return nil
}

// Runs a whole derivation in one call.  A non-nil key overrides the
// loaded key derivation key.
func (kdf *KDF) OneShot(outBits uint32, label, context, iv, key []byte) (
	[]byte, Error) {
	if key != nil {
		if err := kdf.SetKey(key); err != nil {
			return nil, err
		}
	}
	if err := kdf.Init(outBits, label, context, iv); err != nil {
		return nil, err
	}
	ret, err := kdf.Update(outBits)
	if err != nil {
		return nil, err
	}
	if err := kdf.Final(); err != nil {
		return nil, err
	}
	return ret, nil
}
