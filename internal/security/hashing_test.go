package security

import (
	"strings"
	"testing"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(4) // min cost for fast tests

	digest, err := h.Hash("SecurePass123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if digest == "" {
		t.Fatal("expected non-empty digest")
	}
	if !h.Verify("SecurePass123!", digest) {
		t.Error("Verify with correct password should succeed")
	}
	if h.Verify("WrongPass123!", digest) {
		t.Error("Verify with wrong password should fail")
	}
}

func TestHasher_MalformedDigest(t *testing.T) {
	h := NewHasher(4)
	if h.Verify("anything", "not-a-bcrypt-digest") {
		t.Error("malformed digest should verify false")
	}
	if h.Verify("anything", "") {
		t.Error("empty digest should verify false")
	}
}

func TestHasher_LongPasswords(t *testing.T) {
	h := NewHasher(4)

	// bcrypt alone truncates at 72 bytes; the SHA-256 pre-hash must not.
	base := strings.Repeat("a", 72)
	p1 := base + "different-tail-1"
	p2 := base + "different-tail-2"

	d1, err := h.Hash(p1)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(p1, d1) {
		t.Error("long password should verify against its own digest")
	}
	if h.Verify(p2, d1) {
		t.Error("passwords differing after byte 72 must not collide")
	}
}

func TestHasher_NulBytes(t *testing.T) {
	h := NewHasher(4)
	p := "pass\x00word"
	digest, err := h.Hash(p)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(p, digest) {
		t.Error("password with NUL byte should round-trip")
	}
	if h.Verify("pass", digest) {
		t.Error("prefix of NUL-containing password must not verify")
	}
}

func TestNewHasher_CostClamping(t *testing.T) {
	if got := NewHasher(0).Cost; got != 10 { // bcrypt.DefaultCost
		t.Errorf("cost 0 -> %d, want default 10", got)
	}
	if got := NewHasher(2).Cost; got != 4 {
		t.Errorf("cost 2 -> %d, want min 4", got)
	}
	if got := NewHasher(99).Cost; got != 31 {
		t.Errorf("cost 99 -> %d, want max 31", got)
	}
}
