package leads

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEmail is returned for emails that fail validation, including
// free-provider addresses.
var ErrInvalidEmail = errors.New("invalid email")

// blockedDomains are personal/free email providers; the demo asks for a
// company address.
var blockedDomains = map[string]bool{
	"gmail.com":      true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"aol.com":        true,
	"icloud.com":     true,
	"mail.com":       true,
	"protonmail.com": true,
	"zoho.com":       true,
	"yandex.com":     true,
	"gmx.com":        true,
	"live.com":       true,
	"msn.com":        true,
	"me.com":         true,
	"inbox.com":      true,
}

// NormalizeEmail lowercases and trims the address and validates it.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required: %w", ErrInvalidEmail)
	}

	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") || at == len(email)-1 {
		return "", fmt.Errorf("malformed address %q: %w", email, ErrInvalidEmail)
	}

	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", fmt.Errorf("malformed domain %q: %w", domain, ErrInvalidEmail)
	}
	if blockedDomains[domain] {
		return "", fmt.Errorf("please use your company email address: %w", ErrInvalidEmail)
	}
	return email, nil
}
