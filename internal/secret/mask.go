// Package secret masks credentials before they reach the logs.
package secret

import (
	"net/url"
	"strings"
)

// Mask returns a masked representation of a secret string.
//   - length <= 5: fully masked
//   - length <= 20: first and last characters visible
//   - length > 20: first 3 and last 1 characters visible
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}

// MaskURL masks the password of a connection URL such as a redis address.
// Values that do not parse as URLs are returned unchanged.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if pw, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), Mask(pw))
	}
	return u.Redacted()
}
