package nl2sql

import (
	"strings"
)

// ExtractSQL returns the first SQL statement found in a free-form completion,
// rejoined onto a single line without its trailing semicolon. Capture starts at
// the first line beginning with SELECT or WITH and stops after the first line
// ending in a semicolon; without a terminator everything up to the end of the
// text is kept. An empty string means no statement was found.
func ExtractSQL(text string) string {
	var lines []string
	capturing := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !capturing && startsStatement(trimmed) {
			capturing = true
		}
		if !capturing {
			continue
		}
		if strings.HasSuffix(trimmed, ";") {
			lines = append(lines, strings.TrimRight(trimmed, ";"))
			break
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, " ")
}

func startsStatement(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}
