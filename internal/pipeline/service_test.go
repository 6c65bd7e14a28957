package pipeline

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
)

type fakeStatus struct {
	owner, repo string
	targets     []string
	err         error
}

func (f *fakeStatus) ReportAll(ctx context.Context, owner, repo string, outcomes []CommitOutcome, targetURL func(CommitOutcome) string) error {
	f.owner, f.repo = owner, repo
	for _, o := range outcomes {
		f.targets = append(f.targets, targetURL(o))
	}
	return f.err
}

type fakeNotifier struct {
	called   int
	outcomes []CommitOutcome
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, batch PushBatch, outcomes []CommitOutcome) error {
	f.called++
	f.outcomes = outcomes
	return f.err
}

func TestService_HandlePush(t *testing.T) {
	h := newHarness(t, &fakeRunner{})
	st := &fakeStatus{}
	nt := &fakeNotifier{}
	svc := &Service{
		Controller: h.ctrl,
		Status:     st,
		Notifier:   nt,
		PublicURL:  "https://ci.example.com/",
	}

	outcomes := svc.HandlePush(context.Background(), batchOf("s1"))
	if len(outcomes) != 1 || outcomes[0].Status != outcome.Success {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if st.owner != "acme" || st.repo != "widget" {
		t.Errorf("reported to %s/%s", st.owner, st.repo)
	}
	if len(st.targets) != 1 || st.targets[0] != "https://ci.example.com/buildLogs/1.html" {
		t.Errorf("targets = %v", st.targets)
	}
	if nt.called != 1 || len(nt.outcomes) != 1 {
		t.Errorf("notifier called %d times with %d outcomes", nt.called, len(nt.outcomes))
	}
}

func TestService_CollaboratorFailuresDoNotAlterOutcomes(t *testing.T) {
	h := newHarness(t, &fakeRunner{})
	svc := &Service{
		Controller: h.ctrl,
		Status:     &fakeStatus{err: stderrors.New("502 bad gateway")},
		Notifier:   &fakeNotifier{err: stderrors.New("smtp down")},
	}

	outcomes := svc.HandlePush(context.Background(), batchOf("s1"))
	if outcomes[0].Status != outcome.Success {
		t.Errorf("Status = %s, want SUCCESS", outcomes[0].Status)
	}
}

func TestService_NilCollaborators(t *testing.T) {
	h := newHarness(t, &fakeRunner{})
	svc := &Service{Controller: h.ctrl}

	if got := svc.HandlePush(context.Background(), batchOf("s1")); len(got) != 1 {
		t.Errorf("len(outcomes) = %d, want 1", len(got))
	}
}

func TestService_TargetURL(t *testing.T) {
	entry := &logstore.Entry{Sequence: 4, HTMLPath: "buildLogs/4.html"}
	tests := []struct {
		name   string
		public string
		o      CommitOutcome
		want   string
	}{
		{"page", "https://ci.example.com", CommitOutcome{Log: entry}, "https://ci.example.com/buildLogs/4.html"},
		{"no page", "https://ci.example.com", CommitOutcome{}, "https://ci.example.com/"},
		{"no public url", "", CommitOutcome{Log: entry}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Service{PublicURL: tt.public}
			if got := s.TargetURL(tt.o); got != tt.want {
				t.Errorf("TargetURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
