package helpers

import "strings"

// MaskSensitive redacts credentials from a command line before it is logged.
// For AUTHENTICATE "<mech>" "<initial-response>" everything after the
// mechanism is replaced; other commands are returned unchanged.
func MaskSensitive(line, command string, sensitiveCommands ...string) string {
	isSensitive := false
	for _, cmd := range sensitiveCommands {
		if strings.EqualFold(command, cmd) {
			isSensitive = true
			break
		}
	}
	if !isSensitive {
		return line
	}

	parts := strings.Fields(line)
	cmdIndex := -1
	for i, p := range parts {
		if strings.EqualFold(p, command) {
			cmdIndex = i
			break
		}
	}
	if cmdIndex == -1 {
		return line
	}

	// Keep the command and its mechanism; a bare "AUTHENTICATE PLAIN" whose
	// data follows on a continuation line is safe to log as is.
	keep := cmdIndex + 2
	if len(parts) > keep {
		return strings.Join(parts[:keep], " ") + " [REDACTED]"
	}
	return line
}
