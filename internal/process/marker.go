package process

import "strings"

// SuccessMarker is the literal the build tool prints when a phase succeeds.
// It is the only contract with the tool; exit codes are ignored.
//
// The marker is matched in the output after StripEscapes, so a marker
// wrapped or interrupted by terminal escape sequences still counts. The
// stored log shows the same text that was matched.
const SuccessMarker = "BUILD SUCCESSFUL"

// DetectSuccess reports whether any line of output contains SuccessMarker.
// Empty or truncated output without the marker is a failure.
func DetectSuccess(output string) bool {
	rest := output
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		if strings.Contains(line, SuccessMarker) {
			return true
		}
		rest = tail
	}
	return false
}
