package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxCellLogLength is the maximum length of a cell value to log
	MaxCellLogLength = 40
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Mexican CURP: 18 chars, e.g. GOMJ800101HDFRRN09
	curpPattern = regexp.MustCompile(`(?i)\b[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d\b`)

	// Mexican RFC for persons (13) and companies (12)
	rfcPattern = regexp.MustCompile(`(?i)\b[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}\b`)

	// IMSS social security number: 11 digits, optionally dash separated
	nssPattern = regexp.MustCompile(`\b\d{2}-?\d{2}-?\d{2}-?\d{4}-?\d\b`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeIdentifiers masks national identifiers embedded in free text.
// Use this before logging anything derived from cell values.
func SanitizeIdentifiers(s string) string {
	if s == "" {
		return ""
	}
	sanitized := curpPattern.ReplaceAllString(s, RedactedText)
	sanitized = rfcPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = nssPattern.ReplaceAllString(sanitized, RedactedText)
	return sanitized
}

// SanitizeCell masks identifiers and truncates a cell value for logging.
func SanitizeCell(value string) string {
	return TruncateString(SanitizeIdentifiers(value), MaxCellLogLength)
}

// SanitizeURL removes user:password credentials from a service URL.
func SanitizeURL(raw string) string {
	return connStringPattern.ReplaceAllString(raw, "://"+RedactedText+"@")
}

// SanitizeError sanitizes error messages that might echo cell values or
// service credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeURL(SanitizeIdentifiers(err.Error()))
}

// TruncateString truncates a string to maxLen runes and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
