package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateConnectionID generates a unique, never reused connection ID
func GenerateConnectionID() string {
	return uuid.NewString()
}

// GenerateMeetingID generates a short meeting ID in the meet-xxxxxxxxxxxx form
func GenerateMeetingID() string {
	return GenerateID("meet")
}

// GenerateTraceID generates a unique trace ID
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateID generates a prefixed random ID
func GenerateID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + raw[:12]
}
