package contextutils

import (
	"net/url"
	"strings"
)

// MaskAPIKey hides all but the first and last four characters of a credential
// so rotation events can be logged.
func MaskAPIKey(apiKey string) string {
	switch {
	case apiKey == "":
		return "[EMPTY]"
	case len(apiKey) <= 8:
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
}

// MaskDatabaseURL replaces the password of a connection URL with a placeholder.
func MaskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
