// Package status publishes commit outcomes to the GitHub commit status API.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
	"github.com/NielsdaWheelz/pushci/internal/version"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultContext = "pushci"

	// GitHub rejects descriptions longer than this.
	maxDescription = 140
)

// Reporter posts commit statuses.
type Reporter struct {
	token   string
	baseURL string
	context string
	client  *http.Client
}

// NewReporter creates a commit status reporter.
// baseURL is used for testing and GitHub Enterprise; pass empty string to
// use the public GitHub API. statusContext labels the check; empty means
// "pushci".
func NewReporter(token, baseURL, statusContext string) *Reporter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if statusContext == "" {
		statusContext = defaultContext
	}
	return &Reporter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		context: statusContext,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// statusRequest is the GitHub API request body for a commit status.
type statusRequest struct {
	State       string `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// Report sets the status of o.SHA on owner/repo.
func (r *Reporter) Report(ctx context.Context, owner, repo string, o pipeline.CommitOutcome, targetURL string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/statuses/%s", r.baseURL, owner, repo, o.SHA)
	details := map[string]string{
		"repo": owner + "/" + repo,
		"sha":  o.SHA,
	}

	desc := o.Description
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}
	body, err := json.Marshal(statusRequest{
		State:       o.Status.APIState(),
		TargetURL:   targetURL,
		Description: desc,
		Context:     r.context,
	})
	if err != nil {
		return errors.WrapWithDetails(errors.EStatusReportFailed, "encoding status", err, details)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.WrapWithDetails(errors.EStatusReportFailed, "creating request", err, details)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.WrapWithDetails(errors.EStatusReportFailed, "executing request", err, details)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		details["status_code"] = strconv.Itoa(resp.StatusCode)
		return errors.NewWithDetails(errors.EStatusReportFailed, "github API error: "+resp.Status, details)
	}
	return nil
}

// ReportAll reports every outcome, continuing past failures. The returned
// error joins every individual failure.
func (r *Reporter) ReportAll(ctx context.Context, owner, repo string, outcomes []pipeline.CommitOutcome, targetURL func(pipeline.CommitOutcome) string) error {
	var errs []error
	for _, o := range outcomes {
		target := ""
		if targetURL != nil {
			target = targetURL(o)
		}
		if err := r.Report(ctx, owner, repo, o, target); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Wrap(errors.EStatusReportFailed,
		fmt.Sprintf("%d of %d statuses not reported", len(errs), len(outcomes)),
		stderrors.Join(errs...))
}
