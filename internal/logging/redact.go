package logging

import (
	"regexp"
	"strings"
)

// Header keys whose values never reach the log.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api-key",
	"apikey",
	"authorization",
	"auth",
	"credential",
	"cookie",
}

var addressPattern = regexp.MustCompile(`([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact masks the local part of every mail address in s, keeping its first
// character and the domain: "jane@example.com" becomes "j***@example.com".
func Redact(s string) string {
	return addressPattern.ReplaceAllString(s, "$1***@$2")
}

// RedactField returns value as it may be logged under the header key name.
func RedactField(name, value string) string {
	if IsSensitiveField(name) {
		return RedactedValue
	}
	return Redact(value)
}

// IsSensitiveField checks if a header key is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
