package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
)

// maxBody bounds a webhook request body. GitHub caps payloads at 25 MB.
const maxBody = 25 << 20

// Handler accepts GitHub webhook deliveries.
type Handler struct {
	// Secret enables X-Hub-Signature-256 verification when non-empty.
	Secret string

	// CloneURL overrides the payload's clone_url when non-empty.
	CloneURL string

	// Dispatch starts processing of an accepted push. It must not block.
	Dispatch func(pipeline.PushBatch)

	Log logrus.FieldLogger
}

type response struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	Commits   int    `json:"commits,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	event := r.Header.Get("X-GitHub-Event")
	log = log.WithFields(logrus.Fields{
		"event":    event,
		"delivery": r.Header.Get("X-GitHub-Delivery"),
	})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		h.fail(w, log, http.StatusBadRequest, errors.Wrap(errors.EInvalidPayload, "failed to read body", err))
		return
	}
	if len(body) > maxBody {
		h.fail(w, log, http.StatusRequestEntityTooLarge, errors.New(errors.EInvalidPayload, "payload too large"))
		return
	}

	if h.Secret != "" {
		if err := VerifySignature(h.Secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.fail(w, log, http.StatusUnauthorized, err)
			return
		}
	}

	// Deliveries without the header are treated as pushes so that saved
	// payloads can be replayed with plain curl.
	if event != "" && event != "push" {
		log.Debug("ignoring non-push event")
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
		return
	}

	batch, err := DecodePush(body)
	if err != nil {
		h.fail(w, log, http.StatusBadRequest, err)
		return
	}
	if h.CloneURL != "" {
		batch.CloneURL = h.CloneURL
	}
	if len(batch.Commits) == 0 {
		log.WithField("repo", batch.FullName()).Info("push has no commits")
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
		return
	}

	log.WithFields(logrus.Fields{
		"repo":    batch.FullName(),
		"commits": len(batch.Commits),
	}).Info("push accepted")
	h.Dispatch(batch)
	writeJSON(w, http.StatusAccepted, response{Status: "accepted", Commits: len(batch.Commits)})
}

func (h *Handler) fail(w http.ResponseWriter, log logrus.FieldLogger, code int, err error) {
	log.WithError(err).WithField("code", errors.GetCode(err)).Warn("webhook rejected")
	msg := err.Error()
	if ce, ok := errors.AsCIError(err); ok {
		msg = ce.Msg
	}
	writeJSON(w, code, response{
		Status:    "rejected",
		ErrorCode: string(errors.GetCode(err)),
		Message:   msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
