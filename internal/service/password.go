package service

import (
	"golang.org/x/crypto/bcrypt"

	"accounts-service/internal/apperr"
)

const (
	msgInvalidCredentials = "Invalid credentials."
	msgSamePassword       = "New password cannot be current password."
)

// BcryptHasher hashea y verifica contraseñas con bcrypt.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify falla con Unauthorized si la contraseña no corresponde al hash.
// Un hash almacenado corrupto cuenta como mismatch.
func (h *BcryptHasher) Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.Unauthorized(msgInvalidCredentials)
	}
	return nil
}

// RejectIfSame impide reutilizar la contraseña actual.
func (h *BcryptHasher) RejectIfSame(newPassword, oldHash string) error {
	if bcrypt.CompareHashAndPassword([]byte(oldHash), []byte(newPassword)) == nil {
		return apperr.Validation(msgSamePassword)
	}
	return nil
}
