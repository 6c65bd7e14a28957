// Package errors provides error formatting for pushci CLI output.
package errors

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// PrintOptions controls error output formatting.
type PrintOptions struct {
	// Verbose enables detailed error output with more context keys and longer tails.
	Verbose bool

	// Tailer returns the last lines of the build log named by an error's
	// "log" detail. If nil, no output block is printed.
	Tailer func(logPath string, maxLines int) ([]string, error)
}

// Context keys printed in default mode, in order.
var defaultContextKeys = []string{
	"op",
	"push_id",
	"repo",
	"sha",
	"phase",
	"workspace",
	"command",
	"exit_code",
	"timeout",
	"path",
	"log",
}

// Context keys printed in verbose mode, in order.
var verboseContextKeys = []string{
	"op",
	"push_id",
	"repo",
	"repo_url",
	"sha",
	"phase",
	"workspace",
	"command",
	"exit_code",
	"signal",
	"timeout",
	"duration_ms",
	"path",
	"field",
	"log",
	"status_code",
	"hint",
}

const (
	defaultMaxLines = 20
	verboseMaxLines = 100

	maxValueLen      = 256 // single-line context values
	maxExtraValueLen = 128 // extra section values
	maxOutputLineLen = 512 // per line in output blocks
)

// Format formats an error for display without I/O.
func Format(err error, opts PrintOptions) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	ce, ok := AsCIError(err)
	if !ok {
		sb.WriteString(err.Error())
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString("error_code: ")
	sb.WriteString(string(ce.Code))
	sb.WriteString("\n")
	sb.WriteString(ce.Msg)
	sb.WriteString("\n")
	if ce.Cause != nil && opts.Verbose {
		sb.WriteString("cause: ")
		sb.WriteString(sanitizeValue(ce.Cause.Error(), maxValueLen))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	contextKeys := defaultContextKeys
	if opts.Verbose {
		contextKeys = verboseContextKeys
	}

	printedKeys := make(map[string]bool)
	for _, key := range contextKeys {
		if ce.Details == nil {
			continue
		}
		val, ok := ce.Details[key]
		if !ok || val == "" || key == "hint" {
			continue
		}
		printedKeys[key] = true
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(sanitizeValue(val, maxValueLen))
		sb.WriteString("\n")
	}

	if opts.Verbose && ce.Details != nil {
		var extraKeys []string
		for key := range ce.Details {
			if !printedKeys[key] && key != "hint" && key != "stderr" {
				extraKeys = append(extraKeys, key)
			}
		}
		if len(extraKeys) > 0 {
			sort.Strings(extraKeys)
			sb.WriteString("\nextra:\n")
			for _, key := range extraKeys {
				val := ce.Details[key]
				if val == "" {
					continue
				}
				sb.WriteString("  ")
				sb.WriteString(key)
				sb.WriteString(": ")
				sb.WriteString(sanitizeValue(val, maxExtraValueLen))
				sb.WriteString("\n")
			}
		}
	}

	if ce.Details != nil {
		if hint := ce.Details["hint"]; hint != "" {
			sb.WriteString("\nhint: ")
			sb.WriteString(hint)
			sb.WriteString("\n")
		}
	}

	for _, try := range deriveTryLines(ce) {
		sb.WriteString("try: ")
		sb.WriteString(try)
		sb.WriteString("\n")
	}

	return sb.String()
}

// PrintWithOptions writes a formatted error to w with the given options.
// When the error carries a "log" detail and opts.Tailer is set, the tail of
// that build log is printed before the hint and try lines.
func PrintWithOptions(w io.Writer, err error, opts PrintOptions) {
	if err == nil {
		return
	}

	output := Format(err, opts)

	ce, ok := AsCIError(err)
	if ok && opts.Tailer != nil && ce.Details != nil && ce.Details["log"] != "" {
		maxLines := defaultMaxLines
		if opts.Verbose {
			maxLines = verboseMaxLines
		}
		lines, tailErr := opts.Tailer(ce.Details["log"], maxLines)
		if tailErr == nil && len(lines) > 0 {
			output = insertOutputBlock(output, lines, maxLines)
		}
	}

	_, _ = io.WriteString(w, output)
}

// sanitizeValue trims trailing whitespace, escapes newlines and truncates
// to maxLen so the value fits on one line.
func sanitizeValue(val string, maxLen int) string {
	val = strings.TrimRight(val, " \t\r\n")
	val = strings.ReplaceAll(val, "\r\n", "\n")
	val = strings.ReplaceAll(val, "\n", "\\n")
	if len(val) > maxLen {
		return val[:maxLen] + "…"
	}
	return val
}

// insertOutputBlock inserts the output tail block before the hint line.
func insertOutputBlock(output string, lines []string, maxLines int) string {
	var block strings.Builder
	if len(lines) >= maxLines {
		block.WriteString(fmt.Sprintf("\noutput (last %d lines):\n", len(lines)))
	} else {
		block.WriteString(fmt.Sprintf("\noutput (%d lines):\n", len(lines)))
	}
	for _, line := range lines {
		if len(line) > maxOutputLineLen {
			line = line[:maxOutputLineLen] + "…"
		}
		block.WriteString("  ")
		block.WriteString(line)
		block.WriteString("\n")
	}

	if idx := strings.Index(output, "\nhint: "); idx >= 0 {
		return output[:idx] + block.String() + output[idx:]
	}
	if idx := strings.Index(output, "\ntry: "); idx >= 0 {
		return output[:idx] + block.String() + output[idx:]
	}
	return output + block.String()
}

// deriveTryLines returns actionable suggestions based on error code.
func deriveTryLines(ce *CIError) []string {
	if ce == nil {
		return nil
	}

	var lines []string
	switch ce.Code {
	case ECleanupFailed:
		if ce.Details != nil && ce.Details["workspace"] != "" {
			lines = append(lines, fmt.Sprintf("rm -rf %s", ce.Details["workspace"]))
		}
	case ELogStoreIO:
		lines = append(lines, "pushci reindex")
	case EInvalidConfig:
		if ce.Details != nil && ce.Details["path"] != "" {
			lines = append(lines, fmt.Sprintf("$EDITOR %s", ce.Details["path"]))
		}
	}
	return lines
}
