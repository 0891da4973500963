package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ComparisonKey strips spaces and hyphens, nothing else. It is the fallback
// form of CanonicalKey for values that do not parse as phone numbers, so
// identical deliveries of a garbage value still compare equal.
func ComparisonKey(phone string) string {
	if phone == "" {
		return ""
	}
	key := strings.TrimSpace(phone)
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "-", "")
	return key
}

// CanonicalKey reduces a phone number to the key used for duplicate
// comparison. Valid numbers canonicalize to E.164 so "054-9210117" and
// "+972549210117" collide regardless of how the source formatted them;
// unparseable values fall back to separator stripping so they still
// dedup against identical deliveries.
func CanonicalKey(phone, region string) string {
	if phone == "" {
		return ""
	}
	if e164, err := NormalizeE164(phone, region); err == nil {
		return e164
	}
	return ComparisonKey(phone)
}

// ValidationResult contains the result of phone number validation.
type ValidationResult struct {
	IsValid     bool   `json:"is_valid"`
	E164Format  string `json:"e164_format"`
	NationalFmt string `json:"national_format"`
	CountryCode string `json:"country_code"`
}

// Validate parses a phone number and returns detailed information.
// Sheet and webhook data is mostly Israeli national format, so the caller
// passes a default region; numbers with an explicit +prefix override it.
func Validate(phone, region string) (*ValidationResult, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}

	if region == "" {
		region = "IL"
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}

	return &ValidationResult{
		IsValid:     phonenumbers.IsValidNumber(parsed),
		E164Format:  phonenumbers.Format(parsed, phonenumbers.E164),
		NationalFmt: phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		CountryCode: phonenumbers.GetRegionCodeForNumber(parsed),
	}, nil
}

// NormalizeE164 normalizes a phone number to E.164 format.
// Returns an error for unparseable or invalid numbers; the repair service
// keeps the original value in that case.
func NormalizeE164(phone, region string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}

	if region == "" {
		region = "IL"
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number")
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
