// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// ErrInvalidNumber is returned when a number cannot be parsed into a valid E.164 form.
var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeE164 formats a phone number to E.164 using the default region.
// If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	normalized, err := ToE164(input, defaultRegion)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// ToE164 parses input relative to region and returns its E.164 form.
func ToE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = defaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// LooksLikePhone reports whether s parses as a valid number in region.
// Used to keep phone numbers out of anonymous analytics payloads.
func LooksLikePhone(s, region string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return false
	}
	_, err := ToE164(s, region)
	return err == nil
}
