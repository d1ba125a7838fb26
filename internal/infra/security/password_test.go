package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherCompare(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("mosi-oa-tunya")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := h.Compare(hash, "mosi-oa-tunya"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestBcryptHasherNeedsRehash(t *testing.T) {
	weak := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := weak.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if weak.NeedsRehash(hash) {
		t.Fatal("hash made at the current cost flagged for rehash")
	}
	if !(BcryptHasher{Cost: bcrypt.MinCost + 1}).NeedsRehash(hash) {
		t.Fatal("cost change not detected")
	}
	if !weak.NeedsRehash("not-a-hash") {
		t.Fatal("garbage hash should be replaced")
	}
}
