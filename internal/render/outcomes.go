package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
)

// WriteOutcomes writes one row per commit outcome, in push order.
// logURL may be nil, in which case the page path is shown.
func WriteOutcomes(w io.Writer, outcomes []pipeline.CommitOutcome, logURL func(pipeline.CommitOutcome) string) error {
	if len(outcomes) == 0 {
		_, err := fmt.Fprintln(w, "no commits processed")
		return err
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		log := "-"
		if o.Log != nil {
			log = o.Log.HTMLPath
			if logURL != nil {
				if u := logURL(o); u != "" {
					log = u
				}
			}
		}
		subject, _, _ := strings.Cut(o.Message, "\n")
		rows = append(rows, []string{
			ShortSHA(o.SHA),
			string(o.Status),
			log,
			TruncateForDisplay(subject, MessageMaxLen),
		})
	}
	if err := writeTable(w, []string{"SHA", "STATUS", "LOG", "MESSAGE"}, rows); err != nil {
		return err
	}

	for _, o := range outcomes {
		for _, warn := range o.Warnings {
			if _, err := fmt.Fprintf(w, "warning: %s: %s\n", ShortSHA(o.SHA), warn); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEntries writes the log store listing, newest first.
func WriteEntries(w io.Writer, entries []logstore.Entry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no build logs stored")
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		sha := ShortSHA(e.SHA)
		if sha == "" {
			sha = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Sequence),
			sha,
			formatRelativeTime(e.CreatedAt, now),
			e.HTMLPath,
		})
	}
	return writeTable(w, []string{"SEQ", "SHA", "CREATED", "PAGE"}, rows)
}
