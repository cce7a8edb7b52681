package users

import (
	"strings"

	"github.com/sddion/projectzg/internal/auth"
)

const fallbackUsernamePrefix = "user_"

// usernameCandidate picks the first usable username: the identity metadata, then the email local part, then a
// name derived from the user id.
func usernameCandidate(identity auth.Identity) string {
	if name := normalize(identity.Metadata.Username); auth.IsValidUsername(name) {
		return name
	}
	if local, _, found := strings.Cut(normalize(identity.Email), "@"); found {
		if name := sanitizeUsername(local); auth.IsValidUsername(name) {
			return name
		}
	}
	return fallbackUsername(identity.UserID)
}

func sanitizeUsername(raw string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
		if builder.Len() == auth.MaxUsernameLength {
			break
		}
	}
	return builder.String()
}

func fallbackUsername(userID string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(userID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
		}
		if builder.Len() == 8 {
			break
		}
	}
	return fallbackUsernamePrefix + builder.String()
}
