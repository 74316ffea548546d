// Package cryptox hashes and verifies account passwords.
package cryptox

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/stylist/internal/common"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// bcrypt rejects longer inputs.
const maxPasswordLength = 72

// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var Cost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword validates password length and returns its bcrypt hash.
func HashPassword(password []byte) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, errors.Join(common.ErrorValidation, errors.New("password is too short"))
	}
	if len(password) > maxPasswordLength {
		return nil, errors.Join(common.ErrorValidation, errors.New("password is too long"))
	}
	return bcrypt.GenerateFromPassword(password, Cost)
}

// CheckPassword reports whether password matches hash. A nil hash (guest
// account or unknown email) still runs a full comparison against a fixed
// hash so the caller cannot tell the cases apart by timing.
func CheckPassword(hash, password []byte) bool {
	if len(hash) == 0 {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("stylist-dummy-password"), Cost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, password)
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}
