package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordMismatch = errors.New("security: password mismatch")

// BcryptHasher hashes account passwords. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// NeedsRehash reports whether hash was made with a different cost than the
// hasher's, so a successful login can upgrade it.
func (h BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != h.cost()
}

func (h BcryptHasher) cost() int {
	if h.Cost >= bcrypt.MinCost && h.Cost <= bcrypt.MaxCost {
		return h.Cost
	}
	return bcrypt.DefaultCost
}
