package pasd

import (
	"bytes"
	"testing"
)

func zeroKeyIV() (key [aesKeySize]byte, iv [aesBlockSize]byte) {
	return key, iv
}

// TestEncryptCBC_OuterRoundTrip reproduces spec.md §8 S1 bit-for-bit:
// a non-block-aligned plaintext round-trips through encrypt/decrypt.
func TestEncryptCBC_OuterRoundTrip(t *testing.T) {
	key, iv := zeroKeyIV()
	plaintext := []byte("Ok, just test string, nothing special...")
	want := []byte{
		69, 202, 218, 247, 150, 136, 226, 229, 109, 48, 187, 61, 12, 132, 72, 235, 24, 183,
		214, 13, 119, 24, 138, 20, 147, 13, 195, 15, 241, 56, 50, 111, 78, 134, 4, 160, 217,
		49, 130, 113, 151, 222, 164, 198, 138, 20, 58, 71,
	}

	got, err := EncryptCBC(key[:], iv[:], plaintext)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncryptCBC = %v, want %v", got, want)
	}

	back, err := DecryptCBC(key[:], iv[:], got)
	if err != nil {
		t.Fatalf("DecryptCBC: %v", err)
	}
	if !bytes.Equal(back, plaintext) {
		t.Fatalf("DecryptCBC round trip = %q, want %q", back, plaintext)
	}
}

// TestEncryptCBC_ExactBlockBoundary reproduces spec.md §8 S2: a
// 32-byte (block-aligned) plaintext encrypts to 32 ciphertext bytes,
// with no extra pad block. This is encrypt-only — see crypto.go's
// DecryptCBC doc comment and DESIGN.md for why a block-aligned
// ciphertext is not generally safe to decrypt.
func TestEncryptCBC_ExactBlockBoundary(t *testing.T) {
	key, iv := zeroKeyIV()
	plaintext := []byte("Ok, this is 32-len test string..")
	if len(plaintext) != 32 {
		t.Fatalf("test fixture plaintext must be 32 bytes, got %d", len(plaintext))
	}
	want := []byte{
		50, 221, 228, 118, 235, 92, 213, 75, 246, 247, 143, 174, 141, 73, 67, 80, 250, 27, 152,
		211, 101, 57, 91, 38, 155, 128, 166, 83, 191, 202, 188, 66,
	}

	got, err := EncryptCBC(key[:], iv[:], plaintext)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	if len(got) != 32 {
		t.Fatalf("EncryptCBC produced %d bytes for a block-aligned plaintext, want 32 (no pad block)", len(got))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncryptCBC = %v, want %v", got, want)
	}
}

// TestEncryptCBC_EmptyPlaintext checks the "still one padded block"
// requirement of spec.md §4.1 for a zero-length input.
func TestEncryptCBC_EmptyPlaintext(t *testing.T) {
	key, iv := zeroKeyIV()

	ct, err := EncryptCBC(key[:], iv[:], nil)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	if len(ct) != aesBlockSize {
		t.Fatalf("EncryptCBC(empty) produced %d bytes, want %d", len(ct), aesBlockSize)
	}

	pt, err := DecryptCBC(key[:], iv[:], ct)
	if err != nil {
		t.Fatalf("DecryptCBC: %v", err)
	}
	if len(pt) != 0 {
		t.Fatalf("DecryptCBC(encrypt(empty)) = %v, want empty", pt)
	}
}

// TestEncryptCBC_RoundTripProperty checks P6 (decrypt(encrypt(x)) ==
// x) over a range of plaintext lengths that are NOT exact multiples
// of 16 — the scope P6 holds at, per the inherited limitation
// documented in DESIGN.md and in DecryptCBC's doc comment.
func TestEncryptCBC_RoundTripProperty(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, aesKeySize)
	iv := bytes.Repeat([]byte{0x24}, aesBlockSize)

	for length := 0; length < 80; length++ {
		if length%aesBlockSize == 0 {
			continue
		}
		plaintext := bytes.Repeat([]byte{byte(length)}, length)

		ct, err := EncryptCBC(key, iv, plaintext)
		if err != nil {
			t.Fatalf("length %d: EncryptCBC: %v", length, err)
		}
		pt, err := DecryptCBC(key, iv, ct)
		if err != nil {
			t.Fatalf("length %d: DecryptCBC: %v", length, err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("length %d: round trip = %v, want %v", length, pt, plaintext)
		}
	}
}

func TestDecryptCBC_RejectsMalformedLength(t *testing.T) {
	key := bytes.Repeat([]byte{1}, aesKeySize)
	iv := bytes.Repeat([]byte{2}, aesBlockSize)

	cases := map[string][]byte{
		"empty":          {},
		"not-a-multiple": bytes.Repeat([]byte{0}, 17),
	}
	for name, ct := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecryptCBC(key, iv, ct); err == nil {
				t.Fatalf("DecryptCBC(%s) = nil error, want a rejection", name)
			} else if KindOf(err) != KindCrypto {
				t.Fatalf("DecryptCBC(%s) kind = %s, want %s", name, KindOf(err), KindCrypto)
			}
		})
	}
}

func TestDeriveOuterKey_Deterministic(t *testing.T) {
	k1, iv1, err := DeriveOuterKey([]byte("passphrase"))
	if err != nil {
		t.Fatalf("DeriveOuterKey: %v", err)
	}
	k2, iv2, err := DeriveOuterKey([]byte("passphrase"))
	if err != nil {
		t.Fatalf("DeriveOuterKey: %v", err)
	}
	if k1 != k2 || iv1 != iv2 {
		t.Fatalf("DeriveOuterKey is not deterministic for the same passphrase")
	}

	k3, _, err := DeriveOuterKey([]byte("different"))
	if err != nil {
		t.Fatalf("DeriveOuterKey: %v", err)
	}
	if k1 == k3 {
		t.Fatalf("DeriveOuterKey produced the same key for different passphrases")
	}
}

func TestDeriveInnerKeyIV_Deterministic(t *testing.T) {
	k1, iv1, err := DeriveInnerKeyIV([]byte("group-secret"))
	if err != nil {
		t.Fatalf("DeriveInnerKeyIV: %v", err)
	}
	k2, iv2, err := DeriveInnerKeyIV([]byte("group-secret"))
	if err != nil {
		t.Fatalf("DeriveInnerKeyIV: %v", err)
	}
	if k1 != k2 || iv1 != iv2 {
		t.Fatalf("DeriveInnerKeyIV is not deterministic for the same group secret")
	}
}
