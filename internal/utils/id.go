package utils

import (
	"github.com/google/uuid"
)

// NewRandomID returns a new random unique id.
func NewRandomID() string {
	return uuid.NewString()
}

// IsValidID returns true if the given string is a well formed id.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
