package validation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeClientID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "normal prefix", input: "car-1", expected: "car-1"},
		{name: "control characters", input: "car\x00client\n\r", expected: "carclient"},
		{name: "wildcards and separators", input: "car/+#x", expected: "carx"},
		{name: "too long", input: strings.Repeat("x", 40), expected: strings.Repeat("x", maxClientIDPrefix)},
		{name: "too long multibyte", input: strings.Repeat("é", 20), expected: strings.Repeat("é", 13)},
		{name: "empty after sanitization", input: "\x00\x01 ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeClientID(tt.input); got != tt.expected {
				t.Errorf("SanitizeClientID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "normal username", input: "user123", expected: "user123"},
		{name: "quotes and backslashes kept", input: `dom\user'test"name`, expected: `dom\user'test"name`},
		{name: "control chars", input: "user\x00test\nname", expected: "usertestname"},
		{name: "surrounding spaces", input: "  user test  ", expected: "user test"},
		{name: "too long multibyte", input: "a" + strings.Repeat("é", 70), expected: "a" + strings.Repeat("é", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeUsername(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeUsername() = %q, want %q", got, tt.expected)
			}
			if !utf8.ValidString(got) {
				t.Errorf("SanitizeUsername() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestSanitizePassword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "normal password", input: "P@ssw0rd!", expected: "P@ssw0rd!"},
		{name: "null byte", input: "pass\x00word", expected: "password"},
		{name: "allowed control chars", input: "pass\tword\n", expected: "pass\tword\n"},
		{name: "leading space kept", input: " secret", expected: " secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePassword(tt.input); got != tt.expected {
				t.Errorf("SanitizePassword() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeHost(t *testing.T) {
	tests := map[string]string{
		"broker.local":           "broker.local",
		"  broker.local ":        "broker.local",
		"tcp://broker.local":     "broker.local",
		"MQTT://broker.local/":   "broker.local",
		"mqtts://secure.example": "secure.example",
	}

	for in, want := range tests {
		if got := SanitizeHost(in); got != want {
			t.Errorf("SanitizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}
