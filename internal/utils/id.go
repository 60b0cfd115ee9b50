package utils

import "github.com/google/uuid"

// GenerateID returns an opaque unique token used as a request identifier.
func GenerateID() string {
	return uuid.NewString()
}

// IsValidUUID reports whether s parses as a UUID. Case and user identifiers
// are issued by the upstream record system as UUIDs.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
