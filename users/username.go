package users

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxUsernameLen = 32

// baseUsername derives a handle from a display name, falling back to the local part
// of the email.
func baseUsername(displayName, email string) string {
	src := displayName
	if strings.TrimSpace(src) == "" {
		src, _, _ = strings.Cut(email, "@")
	}

	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(src) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxUsernameLen {
			break
		}
	}

	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "user"
	}
	return name
}

// withSuffix makes a collision-avoiding variant of name.
func withSuffix(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	if len(name) > maxUsernameLen-7 {
		name = name[:maxUsernameLen-7]
	}
	return name + "-" + suffix
}
