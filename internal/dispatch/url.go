package dispatch

import (
	"net"
	"net/url"
	"strings"
	"unicode"
)

// IsWebURL reports whether text is a single web address: an http or https
// URL, or a bare host name such as "www.example.com/path". Text containing
// whitespace or any other scheme is not a URL.
func IsWebURL(text string) bool {
	_, ok := webURL(text)
	return ok
}

// NormalizeURL returns the address IsWebURL accepted, with http:// added to
// bare host names. ok is false when text is not a web URL.
func NormalizeURL(text string) (string, bool) {
	u, ok := webURL(text)
	if !ok {
		return "", false
	}
	return u.String(), true
}

func webURL(text string) (*url.URL, bool) {
	if text == "" || strings.IndexFunc(text, unicode.IsSpace) >= 0 {
		return nil, false
	}

	raw := text
	if i := strings.Index(raw, "://"); i >= 0 {
		switch strings.ToLower(raw[:i]) {
		case "http", "https":
		default:
			return nil, false
		}
	} else {
		if strings.Contains(raw, ":") && !hasPort(raw) {
			return nil, false
		}
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return nil, false
	}
	if !validWebHost(u.Hostname()) {
		return nil, false
	}
	return u, true
}

// hasPort reports whether the only colon in a scheme-less text belongs to a
// host:port prefix, as in "example.com:8080/x".
func hasPort(text string) bool {
	hostPort := text
	if i := strings.IndexAny(hostPort, "/?#"); i >= 0 {
		hostPort = hostPort[:i]
	}
	_, port, err := net.SplitHostPort(hostPort)
	if err != nil || port == "" {
		return false
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// validWebHost accepts IP addresses, localhost, and dotted names whose last
// label is alphabetic.
func validWebHost(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil || strings.EqualFold(host, "localhost") {
		return true
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}

	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
