package pipeline

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

// StatusReporter publishes commit outcomes to the hosting service.
type StatusReporter interface {
	ReportAll(ctx context.Context, owner, repo string, outcomes []CommitOutcome, targetURL func(CommitOutcome) string) error
}

// Notifier sends one summary per push.
type Notifier interface {
	Notify(ctx context.Context, batch PushBatch, outcomes []CommitOutcome) error
}

// Service runs a push and hands the outcomes to the external collaborators.
type Service struct {
	Controller *Controller

	// Status and Notifier may be nil.
	Status   StatusReporter
	Notifier Notifier

	// PublicURL is where the log store is served; status target URLs
	// point at pages under it.
	PublicURL string

	Log logrus.FieldLogger
}

// HandlePush processes batch, reports commit statuses and sends the push
// summary. Collaborator failures are logged and do not alter outcomes.
func (s *Service) HandlePush(ctx context.Context, batch PushBatch) []CommitOutcome {
	outcomes := s.Controller.ProcessPush(ctx, batch)

	log := s.Log
	if log == nil {
		log = s.Controller.logger()
	}
	log = log.WithField("repo", batch.FullName())

	if s.Status != nil {
		if err := s.Status.ReportAll(ctx, batch.Owner, batch.Name, outcomes, s.TargetURL); err != nil {
			log.WithError(err).WithField("code", errors.GetCode(err)).Warn("commit status reporting failed")
		}
	}

	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, batch, outcomes); err != nil {
			log.WithError(err).WithField("code", errors.GetCode(err)).Warn("push notification failed")
		}
	}

	return outcomes
}

// TargetURL returns the public URL of o's log page, or the index when o
// has no page.
func (s *Service) TargetURL(o CommitOutcome) string {
	base := strings.TrimRight(s.PublicURL, "/")
	if base == "" {
		return ""
	}
	if o.Log == nil {
		return base + "/"
	}
	return base + "/" + o.Log.HTMLPath
}
