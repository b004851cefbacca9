package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidateBrokerAddress validates a host:port broker address, as used for
// the journal's Kafka brokers.
func ValidateBrokerAddress(address string) error {
	if address == "" {
		return fmt.Errorf("broker address cannot be empty")
	}
	if !strings.Contains(address, ":") {
		return fmt.Errorf("broker address %q must include port", address)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid broker address format: %w", err)
	}
	if host == "" {
		return fmt.Errorf("broker host cannot be empty")
	}
	if err := validateHost(host); err != nil {
		return err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}
	return validatePort(port)
}

// ValidateMQTTBroker validates the MQTT broker host and port separately.
func ValidateMQTTBroker(host string, port int) error {
	if host == "" {
		return fmt.Errorf("MQTT broker host cannot be empty")
	}
	if err := validateHost(host); err != nil {
		return fmt.Errorf("invalid MQTT broker: %w", err)
	}
	if err := validatePort(port); err != nil {
		return fmt.Errorf("invalid MQTT broker: %w", err)
	}
	return nil
}

// ValidateTopicFilter checks an MQTT subscription filter: non-empty, no NUL,
// '#' only as the last level and '+' only as a whole level.
func ValidateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if len(topic) > 65535 {
		return fmt.Errorf("topic too long")
	}
	if strings.ContainsRune(topic, '\x00') {
		return fmt.Errorf("topic contains NUL character")
	}

	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("'#' must be the whole last topic level")
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("'+' must occupy a whole topic level")
		}
	}
	return nil
}

func validateHost(host string) error {
	if strings.ContainsAny(host, " \t\n\r\"'`;") {
		return fmt.Errorf("host contains invalid characters")
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if err := validateHostname(host); err != nil {
		return fmt.Errorf("invalid hostname: %w", err)
	}
	return nil
}

// validateHostname validates a hostname according to RFC 1123.
func validateHostname(hostname string) error {
	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 {
			return fmt.Errorf("empty label in hostname")
		}
		if len(label) > 63 {
			return fmt.Errorf("hostname label too long (max 63 characters)")
		}
		for i, ch := range label {
			if i == 0 && !isAlphaNumeric(ch) {
				return fmt.Errorf("hostname label must start with alphanumeric character")
			}
			if i == len(label)-1 && ch == '-' {
				return fmt.Errorf("hostname label cannot end with hyphen")
			}
			if !isAlphaNumeric(ch) && ch != '-' {
				return fmt.Errorf("invalid character '%c' in hostname", ch)
			}
		}
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
