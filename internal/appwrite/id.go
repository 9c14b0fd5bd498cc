package appwrite

import (
	"strings"

	"github.com/google/uuid"
)

// UniqueID returns a fresh identifier that satisfies Appwrite's id rules:
// at most 36 characters of [a-zA-Z0-9._-], not starting with a special character.
func UniqueID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
