package validate

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RequireBounded trims and ensures length bounds.
func RequireBounded(name, s string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < min || utf8.RuneCountInString(s) > max {
		return "", errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max) + " characters")
	}
	return s, nil
}

// Optional trims s and truncates it to max runes.
func Optional(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// ParsePrice returns nil for anything that is not a finite, non-negative
// number. Invalid input is treated as "not yet priced" rather than rejected;
// keep it that way until product decides otherwise.
func ParsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return &f
}
