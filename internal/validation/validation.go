package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// City name length bounds, in runes.
const (
	MinCityLength = 1
	MaxCityLength = 100
)

var (
	// ErrCityEmpty is returned when the name is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")

	// ErrCityTooLong is returned when the name exceeds MaxCityLength.
	ErrCityTooLong = errors.New("city name too long")

	// ErrCityInvalidChars is returned when the name contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")
)

// ValidateCity trims the input and restricts it to letters (Unicode), digits, space,
// comma, hyphen, apostrophe and period. Returns the trimmed name.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	if n < MinCityLength {
		return "", ErrCityEmpty
	}
	if n > MaxCityLength {
		return "", fmt.Errorf("%w: %d runes, max %d", ErrCityTooLong, n, MaxCityLength)
	}
	for _, c := range s {
		if !isAllowedCityRune(c) {
			return "", fmt.Errorf("%w: %q", ErrCityInvalidChars, c)
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}

// NormalizeCity is the key used to compare city names: trimmed and lower-cased.
func NormalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
