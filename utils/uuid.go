package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered (v7) identifier, so bid IDs sort in
// creation order.
func GenerateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsID reports whether s is a well-formed UUID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
