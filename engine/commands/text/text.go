// Package text formats help text for CLI commands.
package text

import "strings"

// Indentation is prepended to every line of an example.
const Indentation = `  `

// LongDesc trims the surrounding whitespace of a long description and strips the common
// indentation of a raw string literal.
func LongDesc(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.Join(lines, "\n")
}

// Examples trims an examples block and indents every line.
func Examples(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = Indentation + strings.TrimSpace(line)
	}

	return strings.Join(lines, "\n")
}
