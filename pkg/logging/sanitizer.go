// Package logging sanitizes privacy-sensitive values before they reach log
// output. Signal values are investigation material (IP ranges, user-agent
// strings, email domains) and must not land in plain text logs.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

const (
	// MaxValueLogLength is the maximum length of a signal value to log.
	MaxValueLogLength = 64
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// IPv4 addresses, optionally with a CIDR suffix.
	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?:/\d{1,2})?\b`)

	// Email addresses.
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Connection string credentials (user:pass@host format).
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// password=xxx style key-value pairs.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
)

// SignalValueDigest returns a short stable digest of a signal value,
// loggable without revealing the value itself. Equal values produce equal
// digests, so log lines remain correlatable.
func SignalValueDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:6])
}

// RedactSignalValue removes IPs and email addresses from a signal value and
// truncates it, for contexts where a partial cleartext value is wanted.
func RedactSignalValue(value string) string {
	if value == "" {
		return ""
	}

	sanitized := ipv4Pattern.ReplaceAllString(value, RedactedText)
	sanitized = emailPattern.ReplaceAllString(sanitized, RedactedText)

	if len(sanitized) > MaxValueLogLength {
		sanitized = sanitized[:MaxValueLogLength] + "..."
	}
	return sanitized
}

// SanitizeConnectionString removes credentials from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}
