package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/events"
	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
	"github.com/NielsdaWheelz/pushci/internal/process"
	"github.com/NielsdaWheelz/pushci/internal/workspace"
)

// DefaultMaxParallel bounds how many commits of one push run at once.
const DefaultMaxParallel = 3

// Controller processes push batches. It holds no per-push state and may
// serve concurrent pushes.
type Controller struct {
	Workspaces *workspace.Manager
	Runner     *process.Runner
	Logs       *logstore.Store

	// Journal may be nil.
	Journal *events.Journal
	Log     logrus.FieldLogger

	// Timeout bounds each build tool invocation.
	Timeout time.Duration

	MaxParallel int

	// NewID returns push identifiers. Defaults to uuid.NewString.
	NewID func() string
	Now   func() time.Time
}

// ProcessPush runs every commit of batch and returns one outcome per commit
// in input order. A failure in one commit never affects its siblings.
func (c *Controller) ProcessPush(ctx context.Context, batch PushBatch) []CommitOutcome {
	pushID := c.newID()
	log := c.logger().WithFields(logrus.Fields{
		"push_id": pushID,
		"repo":    batch.FullName(),
	})
	start := c.now()

	log.WithField("commits", len(batch.Commits)).Info("push started")
	c.journal(log, events.Event{
		PushID: pushID,
		Repo:   batch.FullName(),
		Event:  events.PushStarted,
		Data:   events.PushStartedData(batch.CloneURL, len(batch.Commits)),
	})

	outcomes := make([]CommitOutcome, len(batch.Commits))

	limit := c.MaxParallel
	if limit <= 0 {
		limit = DefaultMaxParallel
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, commit := range batch.Commits {
		wg.Add(1)
		go func(i int, commit CommitRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = c.processCommit(ctx, pushID, batch, commit)
		}(i, commit)
	}
	wg.Wait()

	if err := c.Workspaces.ReleaseRun(pushID); err != nil {
		log.WithError(err).Warn("run directory not released")
	}

	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[string(o.Status)]++
	}
	elapsed := c.now().Sub(start)
	log.WithField("statuses", counts).WithField("duration", elapsed).Info("push finished")
	c.journal(log, events.Event{
		PushID: pushID,
		Repo:   batch.FullName(),
		Event:  events.PushFinished,
		Data:   events.PushFinishedData(counts, elapsed.Milliseconds()),
	})

	return outcomes
}

// phaseRun is the result of one workspace + build tool cycle.
type phaseRun struct {
	result   process.Result
	err      error
	warnings []string
}

func (c *Controller) processCommit(ctx context.Context, pushID string, batch PushBatch, commit CommitRef) CommitOutcome {
	log := c.logger().WithFields(logrus.Fields{
		"push_id": pushID,
		"sha":     commit.SHA,
	})
	start := c.now()

	out := CommitOutcome{SHA: commit.SHA, Message: commit.Message}

	build := c.runPhase(ctx, log, pushID, batch, commit, process.PhaseBuild)
	out.Warnings = append(out.Warnings, build.warnings...)
	out.BuildSucceeded = build.err == nil && build.result.Succeeded

	var failure error
	switch {
	case build.err != nil:
		// No trustworthy build result; testing would prove nothing.
		failure = build.err
		out.Status = outcome.Error
	default:
		test := c.runPhase(ctx, log, pushID, batch, commit, process.PhaseTest)
		out.Warnings = append(out.Warnings, test.warnings...)
		out.TestSucceeded = test.err == nil && test.result.Succeeded

		if test.err != nil && out.BuildSucceeded {
			failure = test.err
			out.Status = outcome.Error
		} else {
			if test.err != nil {
				out.Warnings = append(out.Warnings, "test phase: "+test.err.Error())
			}
			out.Status = outcome.Classify(out.BuildSucceeded, out.TestSucceeded)
		}
	}

	out.Description = outcome.Describe(out.Status)
	if failure != nil {
		if code := errors.GetCode(failure); code != "" {
			out.Description = fmt.Sprintf("%s (%s)", out.Description, code)
		}
	}

	entry, err := c.Logs.AppendLog(commit.SHA, logText(build, failure), batch.LinkBase())
	if entry.Sequence > 0 {
		out.Log = &entry
	}
	if err != nil {
		log.WithError(err).WithField("code", errors.GetCode(err)).Error("failed to store build log")
		out.Warnings = append(out.Warnings, "log store: "+err.Error())
	}

	fields := logrus.Fields{"status": out.Status}
	if out.Log != nil {
		fields["seq"] = out.Log.Sequence
	}
	if failure != nil {
		fields["code"] = errors.GetCode(failure)
		log.WithFields(fields).WithError(failure).Warn("commit finished with error")
	} else {
		log.WithFields(fields).Info("commit finished")
	}

	seq := 0
	if out.Log != nil {
		seq = out.Log.Sequence
	}
	c.journal(log, events.Event{
		PushID: pushID,
		Repo:   batch.FullName(),
		SHA:    commit.SHA,
		Event:  events.CommitFinished,
		Data: events.CommitFinishedData(string(out.Status), out.BuildSucceeded, out.TestSucceeded,
			seq, c.now().Sub(start).Milliseconds(), string(errors.GetCode(failure))),
	})

	return out
}

// runPhase creates a fresh workspace, populates it, runs the build tool and
// always destroys the workspace afterwards.
func (c *Controller) runPhase(ctx context.Context, log logrus.FieldLogger, pushID string, batch PushBatch, commit CommitRef, phase process.Phase) (run phaseRun) {
	log = log.WithField("phase", phase)

	ws, err := c.Workspaces.Create(pushID, commit.SHA, phase)
	if err != nil {
		run.err = err
		return run
	}
	defer func() {
		if err := ws.Destroy(); err != nil {
			log.WithError(err).WithField("workspace", ws.Path).Error("workspace cleanup failed")
			run.warnings = append(run.warnings, fmt.Sprintf("%s workspace not removed: %v", phase, err))
			c.journal(log, events.Event{
				PushID: pushID,
				Repo:   batch.FullName(),
				SHA:    commit.SHA,
				Event:  events.CleanupFailed,
				Data:   events.CleanupFailedData(string(phase), ws.Path, err.Error()),
			})
		}
	}()

	if err := ws.Populate(ctx, batch.CloneURL, commit.SHA); err != nil {
		run.err = err
		return run
	}

	log.Debug("running build tool")
	run.result, run.err = c.Runner.Run(ctx, phase, ws.Path, c.Timeout)
	return run
}

// logText is the build phase output, followed by the failure description
// when the commit hit an infrastructure error.
func logText(build phaseRun, failure error) string {
	text := build.result.Output
	if failure == nil {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	if text != "" {
		b.WriteString("\n")
	}
	b.WriteString(errors.Format(failure, errors.PrintOptions{Verbose: true}))
	return b.String()
}

func (c *Controller) journal(log logrus.FieldLogger, e events.Event) {
	if err := c.Journal.Append(e); err != nil {
		log.WithError(err).WithField("event", e.Event).Warn("failed to append event")
	}
}

func (c *Controller) logger() logrus.FieldLogger {
	if c.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return c.Log
}

func (c *Controller) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
