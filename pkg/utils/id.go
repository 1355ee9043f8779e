package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateSourceID returns an id for a user-added stream source, in the
// same stream-<unix-ms> form the dashboard uses.
func GenerateSourceID() string {
	return fmt.Sprintf("stream-%d", Now().UnixMilli())
}

// GenerateSlotID generates a unique pool slot ID
func GenerateSlotID() string {
	return GenerateID("slot")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}
