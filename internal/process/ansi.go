package process

import "regexp"

// escapeSeq matches terminal escape sequences a build tool may emit even
// with a plain console: CSI (colors, cursor moves), OSC (titles and
// hyperlinks), DCS/PM/APC strings, two-byte escapes, and a truncated
// sequence at the end of the output.
var escapeSeq = regexp.MustCompile(
	`\x1b\[[0-9;:<=>?]*[ -/]*[@-~]` +
		`|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?` +
		`|\x1b[PX^_][^\x1b]*\x1b\\` +
		`|\x1b.` +
		`|\x1b\[?$`,
)

// StripEscapes removes terminal escape sequences from build output so the
// log page shows plain text and the success marker can be matched.
func StripEscapes(s string) string {
	if s == "" {
		return s
	}
	return escapeSeq.ReplaceAllString(s, "")
}
