package orgdomain

import (
	"net"
	"strings"
)

// Normalize turns a URL or hostname as commonly typed or found in documents
// into a bare lower case hostname for lookups:
//
//   - Surrounding whitespace is removed.
//   - A leading "http://" or "https://" is removed, case-insensitive.
//   - Everything from the first "/" is removed, and also from a "?" or "#".
//   - Userinfo ("user:pass@") and a port are removed.
//   - A single leading "www." label is removed, case-insensitive.
//   - A trailing dot is removed.
//
// The result is lower case. Names are not checked for valid syntax, and IDNA
// names are not converted.
func Normalize(url string) string {
	s := strings.TrimSpace(url)
	for _, prefix := range []string{"http://", "https://"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	s = stripPort(s)
	// Only a single "www." is removed, "www.www.example.com" becomes
	// "www.example.com".
	if len(s) >= 4 && strings.EqualFold(s[:4], "www.") {
		s = s[4:]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

func stripPort(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
