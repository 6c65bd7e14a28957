// Package webhook decodes and authenticates GitHub push notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
)

// pushPayload is the subset of the GitHub push event we consume.
type pushPayload struct {
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Name  string `json:"name"`
			Login string `json:"login"`
		} `json:"owner"`
		CloneURL string `json:"clone_url"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"commits"`
}

// DecodePush turns a push event body into a batch. Commits keep payload
// order. A push with no commits (branch deletion, tag push) is valid and
// yields an empty batch.
func DecodePush(body []byte) (pipeline.PushBatch, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return pipeline.PushBatch{}, errors.Wrap(errors.EInvalidPayload, "malformed push payload", err)
	}

	owner := p.Repository.Owner.Name
	if owner == "" {
		owner = p.Repository.Owner.Login
	}
	if owner == "" || p.Repository.Name == "" {
		return pipeline.PushBatch{}, errors.NewWithDetails(errors.EInvalidPayload, "push payload has no repository", map[string]string{
			"field": "repository",
		})
	}
	if p.Repository.CloneURL == "" {
		return pipeline.PushBatch{}, errors.NewWithDetails(errors.EInvalidPayload, "push payload has no clone_url", map[string]string{
			"field": "repository.clone_url",
		})
	}

	batch := pipeline.PushBatch{
		Owner:          owner,
		Name:           p.Repository.Name,
		CloneURL:       p.Repository.CloneURL,
		CommitLinkBase: p.Repository.HTMLURL,
	}
	for i, c := range p.Commits {
		if !validSHA(c.ID) {
			return pipeline.PushBatch{}, errors.NewWithDetails(errors.EInvalidPayload, "invalid commit id", map[string]string{
				"field": "commits[" + strconv.Itoa(i) + "].id",
			})
		}
		batch.Commits = append(batch.Commits, pipeline.CommitRef{SHA: c.ID, Message: c.Message})
	}
	return batch, nil
}

// VerifySignature checks an X-Hub-Signature-256 header against body.
func VerifySignature(secret string, body []byte, header string) error {
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return errors.New(errors.ESignatureMismatch, "missing or malformed X-Hub-Signature-256")
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return errors.Wrap(errors.ESignatureMismatch, "malformed X-Hub-Signature-256", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return errors.New(errors.ESignatureMismatch, "signature does not match payload")
	}
	return nil
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// validSHA accepts full or abbreviated hex object names. Commit ids become
// directory names, so nothing else is allowed through.
func validSHA(s string) bool {
	if len(s) < 4 || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
