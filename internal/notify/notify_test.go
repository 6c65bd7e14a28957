package notify

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, m Message) error {
	f.sent = append(f.sent, m)
	return f.err
}

func testBatch() pipeline.PushBatch {
	return pipeline.PushBatch{Owner: "nwessman", Name: "ci"}
}

func testOutcomes() []pipeline.CommitOutcome {
	return []pipeline.CommitOutcome{
		{
			SHA:         "c11d206a",
			Message:     "Update README.md\n\nlonger body",
			Status:      outcome.Success,
			Description: "Build succeeded",
			Log:         &logstore.Entry{Sequence: 1, HTMLPath: "buildLogs/1.html"},
		},
		{
			SHA:         "d22e317b",
			Message:     "Break the build",
			Status:      outcome.BuildFailed,
			Description: "Build failed",
		},
	}
}

func TestCompose(t *testing.T) {
	n := &Notifier{
		Recipients: map[string]string{"nwessman": "nwessman@kth.se"},
		From:       "ci@example.com",
		LogURL: func(o pipeline.CommitOutcome) string {
			if o.Log == nil {
				return ""
			}
			return "https://ci.example.com/" + o.Log.HTMLPath
		},
	}

	m, ok := n.Compose(testBatch(), testOutcomes())
	if !ok {
		t.Fatal("expected a message for a known owner")
	}
	if m.To != "nwessman@kth.se" {
		t.Errorf("To = %q", m.To)
	}
	if m.Subject != "[nwessman/ci] 1 of 2 commit(s) failed" {
		t.Errorf("Subject = %q", m.Subject)
	}

	wantBody := "sha: c11d206a\n" +
		"commit information: Update README.md\n" +
		"result: Build succeeded\n" +
		"log: https://ci.example.com/buildLogs/1.html\n" +
		"\n" +
		"sha: d22e317b\n" +
		"commit information: Break the build\n" +
		"result: Build failed\n" +
		"\n"
	if m.Body != wantBody {
		t.Errorf("Body =\n%s\nwant\n%s", m.Body, wantBody)
	}
}

func TestCompose_AllPassed(t *testing.T) {
	n := &Notifier{Recipients: map[string]string{"nwessman": "n@example.com"}}
	m, _ := n.Compose(testBatch(), testOutcomes()[:1])
	if m.Subject != "[nwessman/ci] 1 commit(s) built, all passed" {
		t.Errorf("Subject = %q", m.Subject)
	}
}

func TestNotify_UnknownOwnerSkipped(t *testing.T) {
	s := &fakeSender{}
	n := &Notifier{Recipients: map[string]string{"someone": "x@example.com"}, Sender: s}

	if err := n.Notify(context.Background(), testBatch(), testOutcomes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(s.sent))
	}
}

func TestNotify_SendFailure(t *testing.T) {
	s := &fakeSender{err: stderrors.New("connection refused")}
	n := &Notifier{Recipients: map[string]string{"nwessman": "n@example.com"}, Sender: s}

	err := n.Notify(context.Background(), testBatch(), testOutcomes())
	if errors.GetCode(err) != errors.ENotifyFailed {
		t.Errorf("code = %s, want %s", errors.GetCode(err), errors.ENotifyFailed)
	}
	if len(s.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(s.sent))
	}
}

func TestMessageBytes(t *testing.T) {
	m := Message{
		From:    "ci@example.com",
		To:      "dev@example.com",
		Subject: "line one\r\nBcc: evil@example.com",
		Body:    "a\nb\n",
	}
	raw := string(m.Bytes())

	if strings.Contains(raw, "\r\nBcc:") {
		t.Error("subject newline allowed header injection")
	}
	if !strings.HasSuffix(raw, "\r\n\r\na\r\nb\r\n") {
		t.Errorf("unexpected body encoding: %q", raw)
	}
	if !strings.HasPrefix(raw, "From: ci@example.com\r\nTo: dev@example.com\r\n") {
		t.Errorf("unexpected headers: %q", raw)
	}
}

func TestSMTPSender_InvalidAddr(t *testing.T) {
	s := &SMTPSender{Addr: "no-port", Username: "u"}
	if err := s.Send(context.Background(), Message{}); err == nil {
		t.Error("expected error for address without port")
	}
}
