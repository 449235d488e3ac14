package crypto

import (
	"bytes"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("solara"))
	b := Hash([]byte("solara"))
	if a != b {
		t.Fatal("same input produced different hashes")
	}
	c := Hash([]byte("solarb"))
	if a == c {
		t.Fatal("different inputs produced the same hash")
	}
}

func TestHashPartsMatchesConcatenation(t *testing.T) {
	whole := Hash([]byte("pool/liq/abcdef"))
	parts := HashParts([]byte("pool/liq/"), []byte("abc"), []byte("def"))
	if whole != parts {
		t.Fatalf("HashParts differs from single-buffer hash: %s != %s", parts, whole)
	}
	if HashParts() != Hash(nil) {
		t.Fatal("empty HashParts should equal hash of empty input")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := Hash([]byte("spend authorization"))

	sig, err := priv.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !VerifySignature(msg[:], sig, priv.PublicKey()) {
		t.Fatal("valid signature rejected")
	}

	// Flipping one bit of the message must invalidate the signature.
	bad := msg
	bad[0] ^= 0x01
	if VerifySignature(bad[:], sig, priv.PublicKey()) {
		t.Fatal("signature verified against a tampered message")
	}

	// A different key must not verify.
	other, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if VerifySignature(msg[:], sig, other.PublicKey()) {
		t.Fatal("signature verified under the wrong public key")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	msg := Hash([]byte("x"))
	if VerifySignature(msg[:], []byte("not a signature"), priv.PublicKey()) {
		t.Fatal("garbage signature accepted")
	}
	sig, err := priv.Sign(msg[:])
	if err != nil {
		t.Fatal(err)
	}
	if VerifySignature(msg[:], sig, []byte("not a pubkey")) {
		t.Fatal("garbage public key accepted")
	}
}

func TestPrivateKeySerializeRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	back, err := PrivateKeyFromBytes(priv.Serialize())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if !bytes.Equal(back.PublicKey(), priv.PublicKey()) {
		t.Fatal("restored key has a different public key")
	}
	if _, err := PrivateKeyFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("short private key accepted")
	}
}

func TestSignRejectsBadHashLength(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := priv.Sign([]byte("too short")); err == nil {
		t.Fatal("signing a non-32-byte digest should fail")
	}
}
