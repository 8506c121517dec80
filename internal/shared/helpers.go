package shared

import (
	"fmt"
	"strings"
)

// QuoteArgs renders an argv for log output, quoting any argument that
// contains whitespace.
func QuoteArgs(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.ContainsAny(arg, " \t\n") {
			quoted = append(quoted, fmt.Sprintf("%q", arg))
		} else {
			quoted = append(quoted, arg)
		}
	}
	return strings.Join(quoted, " ")
}

// HumanSize converts a byte count into a human readable string.
func HumanSize(sizeInBytes int64) string {
	if sizeInBytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	size := float64(sizeInBytes)
	exponent := 0
	for size >= 1024 && exponent < len(units)-1 {
		size /= 1024
		exponent++
	}
	return fmt.Sprintf("%6.2f%s", size, units[exponent])
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return err
	}
	return fmt.Errorf("%s: %w", trimmed, err)
}
