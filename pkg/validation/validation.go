package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParticipantIDRegex validates client-chosen participant IDs
var ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ValidateMeetingID validates a meeting identifier. Meeting IDs are opaque: any printable
// text is accepted, so "Team Standup" and "café" name meetings just like "meet-abc123".
func ValidateMeetingID(meetingID string, maxLen int) error {
	if err := ValidateNonEmptyString(meetingID, "meetingId"); err != nil {
		return err
	}
	if !utf8.ValidString(meetingID) {
		return fmt.Errorf("meetingId contains invalid characters")
	}
	if utf8.RuneCountInString(meetingID) > maxLen {
		return fmt.Errorf("meetingId is too long (max %d characters)", maxLen)
	}
	if hasControl(meetingID) {
		return fmt.Errorf("meetingId contains control characters")
	}
	return nil
}

// ValidateParticipantID validates a client-supplied stable participant ID
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("participantId is required")
	}
	if len(participantID) > 100 {
		return fmt.Errorf("participantId is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("invalid participantId format")
	}
	return nil
}

// ValidateDisplayName validates a display name. The name is client-asserted and only
// checked for presence, length and printable characters.
func ValidateDisplayName(name string, maxLen int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("displayName is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("displayName contains invalid characters")
	}
	if utf8.RuneCountInString(name) > maxLen {
		return fmt.Errorf("displayName is too long (max %d characters)", maxLen)
	}
	if hasControl(name) {
		return fmt.Errorf("displayName contains control characters")
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
