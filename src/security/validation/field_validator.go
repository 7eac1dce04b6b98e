package validation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/username/divtracker/src/apperrors"
)

const MaxSymbolLength = 20

// DateLayout is the layout accepted for from/to query parameters.
const DateLayout = time.DateOnly

var symbolRegex = regexp.MustCompile(`^[A-Za-z0-9._\-^=]+$`)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return apperrors.Invalid("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return apperrors.Invalid("%s exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return apperrors.Invalid("%s is not in the expected format (%s)", fieldName, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateIntString parses a string to int and checks if it's within a range.
// An empty string yields def.
func ValidateIntString(s, fieldName string, def, minVal, maxVal int) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return def, nil
	}
	val, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, apperrors.Invalid("%s must be a whole number", fieldName)
	}
	if val < minVal || val > maxVal {
		return 0, apperrors.Invalid("%s must be between %d and %d, got %d", fieldName, minVal, maxVal, val)
	}
	return val, nil
}

// --- Date Validator ---

// ValidateDateString parses a YYYY-MM-DD date. An empty string yields def.
func ValidateDateString(s, fieldName string, def time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return def, nil
	}
	t, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		return time.Time{}, apperrors.Invalid("%s is not a valid date (expected YYYY-MM-DD)", fieldName)
	}
	return t, nil
}

// ValidateDateRange parses from and to and checks from is not after to.
func ValidateDateRange(fromStr, toStr string, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, err := ValidateDateString(fromStr, "from", defFrom)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ValidateDateString(toStr, "to", defTo)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, apperrors.Invalid("from %s is after to %s", from.Format(DateLayout), to.Format(DateLayout))
	}
	return from, to, nil
}

// --- Specific Format Validators ---

// ValidateSymbol checks a broker or provider symbol taken from a URL path.
func ValidateSymbol(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "symbol"); err != nil {
		return "", err
	}
	if err := ValidateStringMaxLength(trimmed, MaxSymbolLength, "symbol"); err != nil {
		return "", err
	}
	if err := ValidateStringRegex(trimmed, symbolRegex, "symbol", "letters, digits and . _ - ^ ="); err != nil {
		return "", err
	}
	return trimmed, nil
}
