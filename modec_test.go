package bes

import (
	"bytes"
	"testing"
)

// NIST SP 800-38A F.1.1/F.1.2: ECB-AES128.
func TestECBAES128(t *testing.T) {
	key := fromHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	plaintext := fromHex(t,
		"6bc1bee22e409f96e93d7e117393172a"+
			"ae2d8a571e03ac9c9eb76fac45af8e51"+
			"30c81c46a35ce411e5fbc1191a0a52ef"+
			"f69f2445df4f9b17ad2b417be66c3710")
	ciphertext := fromHex(t,
		"3ad77bb40d7a3660a89ecaf32466ef97"+
			"f5d3d58503b9699de785895a96fdbaaf"+
			"43b1cd7f598ece23881b00e3ed030688"+
			"7b0c785e27e8ad3f8223207104725dd4")

	mode := NewECB(NewAES128())
	out, err := mode.EncryptOneShot(nil, plaintext, key)
	if err != nil {
		t.Fatalf("EncryptOneShot: %v", err)
	}
	if !bytes.Equal(out, ciphertext) {
		t.Errorf("encrypt returned %x instead of %x", out, ciphertext)
	}
	out, err = mode.DecryptOneShot(nil, ciphertext, key)
	if err != nil {
		t.Fatalf("DecryptOneShot: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Errorf("decrypt returned %x instead of %x", out, plaintext)
	}
}

// The streamed interface buffers partial blocks across updates.
func TestECBAES128Streaming(t *testing.T) {
	key := fromHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	plaintext := fromHex(t,
		"6bc1bee22e409f96e93d7e117393172a"+
			"ae2d8a571e03ac9c9eb76fac45af8e51"+
			"30c81c46a35ce411e5fbc1191a0a52ef"+
			"f69f2445df4f9b17ad2b417be66c3710")

	mode := NewECB(NewAES128())
	expected, _ := mode.EncryptOneShot(nil, plaintext, key)

	if err := mode.EncryptInit(nil); err != nil {
		t.Fatalf("EncryptInit: %v", err)
	}
	var out []byte
	for _, cut := range [][2]int{{0, 5}, {5, 21}, {21, 32}, {32, 48},
		{48, 49}, {49, 49}, {49, 64}} {
		part, err := mode.EncryptUpdate(plaintext[cut[0]:cut[1]])
		if err != nil {
			t.Fatalf("EncryptUpdate: %v", err)
		}
		out = append(out, part...)
	}
	tail, err := mode.EncryptFinal()
	if err != nil {
		t.Fatalf("EncryptFinal: %v", err)
	}
	out = append(out, tail...)
	if !bytes.Equal(out, expected) {
		t.Errorf("streamed encrypt returned %x instead of %x", out, expected)
	}

	if err := mode.EncryptInit(nil); err != nil {
		t.Fatalf("EncryptInit: %v", err)
	}
	if _, err := mode.EncryptUpdate(plaintext[:5]); err != nil {
		t.Fatalf("EncryptUpdate: %v", err)
	}
	if _, err := mode.EncryptFinal(); err == nil {
		t.Errorf("EncryptFinal should reject an incomplete trailing block")
	}
}

// NIST SP 800-38A F.2.1: CBC-AES128.
func TestCBCAES128(t *testing.T) {
	key := fromHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	iv := fromHex(t, "000102030405060708090a0b0c0d0e0f")
	plaintext := fromHex(t,
		"6bc1bee22e409f96e93d7e117393172a"+
			"ae2d8a571e03ac9c9eb76fac45af8e51"+
			"30c81c46a35ce411e5fbc1191a0a52ef"+
			"f69f2445df4f9b17ad2b417be66c3710")
	ciphertext := fromHex(t,
		"7649abac8119b246cee98e9b12e9197d"+
			"5086cb9b507219ee95db113a917678b2"+
			"73bed6b8e3c1743b7116e69e22229516"+
			"3ff1caa1681fac09120eca307586e1a7")

	mode := NewCBC(NewAES128())
	out, err := mode.EncryptOneShot(iv, plaintext, key)
	if err != nil {
		t.Fatalf("EncryptOneShot: %v", err)
	}
	if !bytes.Equal(out, ciphertext) {
		t.Errorf("encrypt returned %x instead of %x", out, ciphertext)
	}
	out, err = mode.DecryptOneShot(iv, ciphertext, key)
	if err != nil {
		t.Fatalf("DecryptOneShot: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Errorf("decrypt returned %x instead of %x", out, plaintext)
	}
}

// NIST SP 800-38A F.5.5/F.5.6: CTR-AES256.
func TestCTRAES256(t *testing.T) {
	key := fromHex(t,
		"603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv := fromHex(t, "f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff")
	plaintext := fromHex(t,
		"6bc1bee22e409f96e93d7e117393172a"+
			"ae2d8a571e03ac9c9eb76fac45af8e51"+
			"30c81c46a35ce411e5fbc1191a0a52ef"+
			"f69f2445df4f9b17ad2b417be66c3710")
	ciphertext := fromHex(t,
		"601ec313775789a5b7a7f504bbf3d228"+
			"f443e3ca4d62b59aca84e990cacaf5c5"+
			"2b0930daa23de94ce87017ba2d84988d"+
			"dfc9c58db67aada613c2dd08457941a6")

	mode := NewCTR(NewAES256())
	out, err := mode.EncryptOneShot(iv, plaintext, key)
	if err != nil {
		t.Fatalf("EncryptOneShot: %v", err)
	}
	if !bytes.Equal(out, ciphertext) {
		t.Errorf("encrypt returned %x instead of %x", out, ciphertext)
	}
	out, err = mode.DecryptOneShot(iv, ciphertext, key)
	if err != nil {
		t.Fatalf("DecryptOneShot: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Errorf("decrypt returned %x instead of %x", out, plaintext)
	}
}

// CTR is length preserving for any input size, and the streamed
// interface keeps leftover keystream across updates.
func TestCTRStreaming(t *testing.T) {
	key := fromHex(t,
		"603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv := fromHex(t, "f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff")
	plaintext := []byte("a seven-and-forty byte message for the stream..")

	mode := NewCTR(NewAES256())
	expected, err := mode.EncryptOneShot(iv, plaintext, key)
	if err != nil {
		t.Fatalf("EncryptOneShot: %v", err)
	}
	if len(expected) != len(plaintext) {
		t.Fatalf("CTR is not length preserving: %d != %d",
			len(expected), len(plaintext))
	}

	if err := mode.EncryptInit(iv); err != nil {
		t.Fatalf("EncryptInit: %v", err)
	}
	var out []byte
	for _, cut := range [][2]int{{0, 1}, {1, 17}, {17, 17}, {17, 47}} {
		part, err := mode.EncryptUpdate(plaintext[cut[0]:cut[1]])
		if err != nil {
			t.Fatalf("EncryptUpdate: %v", err)
		}
		out = append(out, part...)
	}
	if !bytes.Equal(out, expected) {
		t.Errorf("streamed encrypt returned %x instead of %x", out, expected)
	}
}

func TestModeBadIV(t *testing.T) {
	mode := NewCTR(NewAES256())
	if err := mode.SetKey(make([]byte, 32)); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := mode.EncryptInit(make([]byte, 15)); err == nil {
		t.Errorf("a 15-byte IV should be rejected")
	}
	if err := NewECB(NewAES128()).EncryptInit(
		make([]byte, 16)); err == nil {
		t.Errorf("ECB should reject an IV")
	}
}
