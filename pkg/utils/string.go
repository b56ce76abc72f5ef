package utils

import "strings"

// TruncateString truncates a string to max length, used to keep SDP blobs
// out of log lines.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// IsEmpty checks if string is empty or only whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
