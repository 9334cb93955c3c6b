package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	handleRe = regexp.MustCompile(`^@?[a-zA-Z0-9_]{5,32}$`)
)

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeHandle trims and guarantees a single leading "@".
func NormalizeHandle(handle string) string {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if h == "" {
		return ""
	}
	return "@" + h
}

// IsValidEmail performs a simplified RFC 5322 check
func IsValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// IsValidHandle accepts @username or username: latin letters, digits and underscores, 5-32 chars.
func IsValidHandle(handle string) bool {
	return handleRe.MatchString(strings.TrimSpace(handle))
}

// MaskEmail keeps the first character of the local part and of the domain:
// user@example.com -> u***@e***.com
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" {
		return "***@***"
	}
	maskedLocal := "***"
	if utf8.RuneCountInString(local) > 1 {
		maskedLocal = firstRune(local) + "***"
	}
	labels := strings.Split(domain, ".")
	if len(labels) >= 2 && labels[0] != "" {
		return maskedLocal + "@" + firstRune(labels[0]) + "***." + labels[len(labels)-1]
	}
	return maskedLocal + "@" + firstRune(domain) + "***"
}

// MaskHandle keeps the first character: @username -> @u******
func MaskHandle(handle string) string {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if h == "" {
		return "@***"
	}
	n := utf8.RuneCountInString(h)
	if n == 1 {
		return "@***"
	}
	stars := min(n-1, 6)
	return "@" + firstRune(h) + strings.Repeat("*", stars)
}

func firstRune(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}

// MaskContact masks by shape: anything with an "@" after the first character is treated as email.
func MaskContact(contact string) string {
	c := strings.TrimSpace(contact)
	if strings.Contains(strings.TrimPrefix(c, "@"), "@") {
		return MaskEmail(c)
	}
	return MaskHandle(c)
}
