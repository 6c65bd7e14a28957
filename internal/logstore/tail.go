package logstore

import (
	"html"
	"os"
	"strings"
)

// TailLog returns the last maxLines lines of the build log stored in the
// page at path, with HTML escaping undone. A page without a log block
// yields no lines. Its signature matches errors.PrintOptions.Tailer.
func TailLog(path string, maxLines int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("failed to read log page", err, path)
	}

	page := string(data)
	start := strings.Index(page, "<pre>")
	end := strings.LastIndex(page, "</pre>")
	if start < 0 || end < start {
		return nil, nil
	}

	body := html.UnescapeString(page[start+len("<pre>") : end])
	body = strings.TrimRight(body, "\r\n")
	if body == "" {
		return nil, nil
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}
