package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length limits, in runes.
const (
	MinLen = 8
	MaxLen = 128
)

var (
	ErrTooShort = errors.New("password must be at least 8 characters")
	ErrTooLong  = errors.New("password must be at most 128 characters")
)

// Strong is the lowest score accepted without a Warning.
const Strong = 3

// Warning accompanies an accepted password that scores below Strong.
type Warning struct {
	Score       int      `json:"score"` // 0..4
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// Validate trims pwd and enforces the length limits. Weak passwords are
// accepted with a Warning. account carries the email and username; a
// password containing either scores lower.
func Validate(pwd string, account ...string) (string, *Warning, error) {
	pwd = strings.TrimSpace(pwd)
	switch n := utf8.RuneCountInString(pwd); {
	case n < MinLen:
		return pwd, nil, ErrTooShort
	case n > MaxLen:
		return pwd, nil, ErrTooLong
	}

	s, hints := score(pwd, account)
	if s >= Strong {
		return pwd, nil, nil
	}
	return pwd, &Warning{Score: s, Message: verdicts[s], Suggestions: hints}, nil
}

var verdicts = [...]string{"Very weak password.", "Weak password.", "Fair password."}

func score(pwd string, account []string) (int, []string) {
	n := utf8.RuneCountInString(pwd)
	seen := make(map[rune]struct{}, n)
	var lower, upper, digit, other bool
	for _, r := range pwd {
		seen[r] = struct{}{}
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	kinds := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			kinds++
		}
	}

	s := 0
	var hints []string
	if n >= 12 {
		s++
	}
	if n >= 16 {
		s++
	}
	if n < 12 {
		hints = append(hints, "Use 12 or more characters; a short passphrase works well.")
	}
	if kinds >= 2 {
		s++
	}
	if kinds >= 3 {
		s++
	} else {
		hints = append(hints, "Mix in capitals, digits or symbols.")
	}
	if len(seen)*2 < n {
		s--
		hints = append(hints, "Avoid long runs of repeated characters.")
	}
	if reusesAccount(pwd, account) {
		s--
		hints = append(hints, "Don't build the password from your email or username.")
	}
	return max(0, min(4, s)), hints
}

func reusesAccount(pwd string, account []string) bool {
	pwd = strings.ToLower(pwd)
	for _, a := range account {
		a = strings.ToLower(strings.TrimSpace(a))
		if at := strings.IndexByte(a, '@'); at >= 0 {
			a = a[:at]
		}
		if len(a) >= 3 && strings.Contains(pwd, a) {
			return true
		}
	}
	return false
}
