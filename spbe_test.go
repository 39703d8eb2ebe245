package bes

import (
	"bytes"
	"math/rand"
	"testing"
)

func newSPBEMaster(nbUsers uint32, t *testing.T) *SPBE {
	master, err := NewSPBE(Master, nbUsers,
		NewCTR(NewAES256()), NewCTR(NewAES256()), newTestKDM(t))
	if err != nil {
		t.Fatalf("NewSPBE: %v", err)
	}
	if err = master.SetMasterKey(testMasterKey); err != nil {
		t.Fatalf("SetMasterKey: %v", err)
	}
	if err = master.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return master
}

// Members never use the KDM.
func newSPBEMember(master *SPBE, user UserID, t *testing.T) *SPBE {
	member, err := NewSPBE(user, master.nbUsers,
		NewCTR(NewAES256()), NewCTR(NewAES256()), nil)
	if err != nil {
		t.Fatalf("NewSPBE: %v", err)
	}
	material, err := master.UserKey(user)
	if err != nil {
		t.Fatalf("UserKey(%d): %v", user, err)
	}
	if err = member.SetUserKey(material); err != nil {
		t.Fatalf("SetUserKey(%d): %v", user, err)
	}
	return member
}

func testSPBEBroadcast(nbUsers uint32, revoked []UserID, t *testing.T) {
	master := newSPBEMaster(nbUsers, t)
	ciphertext, header, err := master.Encrypt(
		testPlaintext, revoked, testSessionIV, nil, testSessionKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	isRevoked := make(map[UserID]bool)
	for _, r := range revoked {
		isRevoked[r] = true
	}
	for user := UserID(0); uint32(user) < nbUsers; user++ {
		member := newSPBEMember(master, user, t)
		plaintext, ok, err := member.Decrypt(
			ciphertext, header, testSessionIV, nil)
		if err != nil {
			t.Fatalf("Decrypt(%d): %v", user, err)
		}
		if isRevoked[user] {
			if ok || len(plaintext) != 0 {
				t.Errorf("revoked user %d decrypted the broadcast", user)
			}
		} else if !ok || !bytes.Equal(plaintext, testPlaintext) {
			t.Errorf("user %d recovered %q, %v instead of %q",
				user, plaintext, ok, testPlaintext)
		}
	}
}

func TestSPBENobodyRevoked(t *testing.T) {
	testSPBEBroadcast(128, nil, t)
}

func TestSPBERevoked128(t *testing.T) {
	testSPBEBroadcast(128, []UserID{9, 11, 12, 26, 28, 54}, t)
}

func TestSPBERevoked256(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping 256-user SPBE broadcast")
	}
	testSPBEBroadcast(256, []UserID{9, 11, 12, 13, 26, 28, 54, 65, 78, 79,
		112, 137, 152, 187, 190, 216, 219, 220, 223, 234}, t)
}

func TestSPBESmallSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(83))
	for _, nbUsers := range []uint32{4, 8, 16, 32, 64} {
		var revoked []UserID
		for user := UserID(0); uint32(user) < nbUsers; user++ {
			if rng.Intn(4) == 0 && uint32(len(revoked)) < nbUsers-1 {
				revoked = append(revoked, user)
			}
		}
		testSPBEBroadcast(nbUsers, revoked, t)
	}
}

// With nobody revoked the cover is the single all-star implicant: the
// header carries a count of 1 and an all-zero coding, and the
// ciphertext is one encrypted session key plus the payload.
func TestSPBEWireFormatEmpty(t *testing.T) {
	master := newSPBEMaster(16, t) // locality 4
	ciphertext, header, err := master.Encrypt(
		testPlaintext, nil, testSessionIV, nil, testSessionKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// 4 bits count + 8 bits coding + 4 padding bits = 2 bytes.
	expected := []byte{0x10, 0x00}
	if !bytes.Equal(header, expected) {
		t.Errorf("header is %x instead of %x", header, expected)
	}
	if len(ciphertext) != 32+len(testPlaintext) {
		t.Errorf("ciphertext has length %d instead of %d",
			len(ciphertext), 32+len(testPlaintext))
	}
}

// The implicant codings sit in the header in reverse cover order:
// decoding from the low end must reproduce the cover.
func TestSPBEWireFormatReversed(t *testing.T) {
	master := newSPBEMaster(8, t) // locality 3
	// Revoking 0 splits the on-set {1..7} into covers such as
	// {**1, *1*, 1**}.
	_, header, err := master.Encrypt(
		testPlaintext, []UserID{0}, testSessionIV, nil, testSessionKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// 3 bits count, 3 codings of 6 bits, 3 padding bits: 3 bytes.
	if len(header) != 3 {
		t.Fatalf("header is %x", header)
	}
	if count := header[0] >> 5; count != 3 {
		t.Fatalf("header count is %d instead of 3", count)
	}

	hdr := uint32(header[0])<<16 | uint32(header[1])<<8 | uint32(header[2])
	hdr >>= 3 // padding
	var codes []uint64
	for i := 0; i < 3; i++ {
		codes = append([]uint64{uint64(hdr & 0x3f)}, codes...)
		hdr >>= 6
	}
	// The cover is selected in ascending prime order, which the
	// star-pattern bucketing fixes to 1**, *1*, **1.
	expected := []uint64{0x04, 0x02, 0x01}
	for k := range expected {
		if codes[k] != expected[k] {
			t.Errorf("header codes are %v instead of %v", codes, expected)
			break
		}
	}
}

func TestSPBEDeterminism(t *testing.T) {
	revoked := []UserID{9, 11, 12, 26, 28, 54}
	master := newSPBEMaster(64, t)
	c1, h1, err := master.Encrypt(
		testPlaintext, revoked, testSessionIV, nil, testSessionKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	c2, h2, err := master.Encrypt(
		testPlaintext, revoked, testSessionIV, nil, testSessionKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !bytes.Equal(c1, c2) || !bytes.Equal(h1, h2) {
		t.Errorf("Encrypt is not deterministic")
	}
}

func TestSPBEUserKeyLength(t *testing.T) {
	master := newSPBEMaster(16, t)
	material, err := master.UserKey(7)
	if err != nil {
		t.Fatalf("UserKey: %v", err)
	}
	if len(material) != 16*32 {
		t.Errorf("key material has length %d instead of %d",
			len(material), 16*32)
	}
}

// Chunk m of the key material belongs to the implicant fixing exactly
// the masked positions to the member's bits.
func TestSPBEKeyCodes(t *testing.T) {
	master := newSPBEMaster(8, t)
	member := newSPBEMember(master, 5, t) // bits 101
	if len(member.keys) != 8 {
		t.Fatalf("%d stored keys instead of 8", len(member.keys))
	}
	// Mask 0b111 fixes every position: the code of implicant 101 is
	// fixed0=010, fixed1=101.
	if member.keys[7].code != 0x15 {
		t.Errorf("code of the full mask is %#x instead of 0x15",
			member.keys[7].code)
	}
	// Mask 0 stars everything.
	if member.keys[0].code != 0 {
		t.Errorf("code of the empty mask is %#x", member.keys[0].code)
	}
}

func TestSPBESequenceErrors(t *testing.T) {
	master, err := NewSPBE(Master, 8,
		NewCTR(NewAES256()), NewCTR(NewAES256()), newTestKDM(t))
	if err != nil {
		t.Fatalf("NewSPBE: %v", err)
	}
	if err := master.Setup(); err == nil || err.Kind() != ErrSequence {
		t.Errorf("Setup without a master key should fail with Sequence")
	}
	if _, _, err := master.Encrypt(testPlaintext, nil, testSessionIV, nil,
		testSessionKey); err == nil || err.Kind() != ErrSequence {
		t.Errorf("Encrypt before Setup should fail with Sequence")
	}

	member, _ := NewSPBE(3, 8,
		NewCTR(NewAES256()), NewCTR(NewAES256()), nil)
	if _, _, err := member.Decrypt(nil, nil, testSessionIV,
		nil); err == nil || err.Kind() != ErrSequence {
		t.Errorf("Decrypt before SetUserKey should fail with Sequence")
	}
	if err := member.SetUserKey(make([]byte, 8)); err == nil ||
		err.Kind() != ErrParameters {
		t.Errorf("truncated key material should be rejected")
	}
}
