// Package pipeline drives every commit of a push through build, test,
// classification and log storage.
package pipeline

import (
	"strings"

	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
)

// CommitRef identifies one commit of a push.
type CommitRef struct {
	SHA     string
	Message string
}

// PushBatch is the unit of work delivered by one push notification.
// Commit order is significant: outcomes are returned in the same order.
type PushBatch struct {
	Owner    string
	Name     string
	CloneURL string

	// CommitLinkBase is the repository page URL; log pages link to
	// CommitLinkBase + "/commit/" + sha. Empty means the GitHub URL.
	CommitLinkBase string

	Commits []CommitRef
}

// FullName returns "owner/name".
func (b PushBatch) FullName() string {
	return b.Owner + "/" + b.Name
}

// LinkBase returns CommitLinkBase, defaulting to the repository's GitHub page.
func (b PushBatch) LinkBase() string {
	if b.CommitLinkBase != "" {
		return strings.TrimRight(b.CommitLinkBase, "/")
	}
	return "https://github.com/" + b.Owner + "/" + b.Name
}

// CommitOutcome is the final result for one commit.
type CommitOutcome struct {
	SHA            string
	Message        string
	BuildSucceeded bool
	TestSucceeded  bool
	Status         outcome.Status
	Description    string

	// Log is nil when no log page could be stored.
	Log *logstore.Entry

	// Warnings are non-fatal problems, such as a workspace that could not
	// be fully removed.
	Warnings []string
}
