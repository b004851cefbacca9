package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxClientIDPrefix leaves room for the "-<uuid>" suffix while keeping the
// full identifier well below what common brokers accept.
const maxClientIDPrefix = 27

// maxUsername is the byte limit for usernames.
const maxUsername = 128

// SanitizeClientID cleans a client identifier prefix: printable characters
// only, no topic wildcards or separators, bounded length. It may return "".
func SanitizeClientID(prefix string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return -1
		}
		switch r {
		case '/', '#', '+':
			return -1
		}
		return r
	}, prefix)

	return truncate(sanitized, maxClientIDPrefix)
}

// SanitizeUsername removes control characters and trims surrounding
// whitespace. Every other character is part of the credential.
func SanitizeUsername(username string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, username)

	return truncate(strings.TrimSpace(sanitized), maxUsername)
}

// SanitizePassword only removes NUL and control characters other than
// tab and newlines; everything else is significant.
func SanitizePassword(password string) string {
	return strings.Map(func(r rune) rune {
		if r == '\x00' || (unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, password)
}

// SanitizeHost trims whitespace and a scheme prefix a user may have pasted
// ("tcp://", "mqtt://").
func SanitizeHost(host string) string {
	host = strings.TrimSpace(host)
	for _, scheme := range []string{"tcp://", "mqtt://", "ssl://", "mqtts://"} {
		if len(host) >= len(scheme) && strings.EqualFold(host[:len(scheme)], scheme) {
			host = host[len(scheme):]
			break
		}
	}
	return strings.TrimSuffix(host, "/")
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
