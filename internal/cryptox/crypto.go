// Package cryptox wraps the password hashing used for account credentials.
package cryptox

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and checks salted bcrypt hashes at a fixed cost.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a bcrypt hash for plaintext. Two calls with the same input
// produce different hashes.
func (h *Hasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", common.ErrInternal, err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
// a malformed hash is an error.
func (h *Hasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: verify password: %v", common.ErrInternal, err)
	}
}
