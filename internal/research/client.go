package research

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"brandscout/internal/config"
	"brandscout/internal/model"
)

// JobError is a research job failure. Jobs are expensive, so the
// client never retries internally; callers decide whether to resubmit.
type JobError struct {
	JobID string
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("research %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("research %s (job %s): %v", e.Stage, e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Result is a finished research job.
type Result struct {
	JobID  string
	Status string
	Output string
	Usage  model.TokenUsage
	Cost   float64
}

// Client drives long-running background research jobs.
type Client struct {
	baseURL string
	apiKey  string
	agent   string
	rates   config.ResearchConfig
	hc      *http.Client
	log     *logrus.Entry

	// Poll pacing, overridable in tests.
	pollBase time.Duration
	pollStep time.Duration
	pollCap  time.Duration
}

func NewClient(cfg config.ResearchConfig, apiKey string, logger *logrus.Entry) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   apiKey,
		agent:    cfg.Agent,
		rates:    cfg,
		hc:       &http.Client{Timeout: 60 * time.Second},
		log:      logger.WithField("component", "research"),
		pollBase: 5 * time.Second,
		pollStep: 5 * time.Second,
		pollCap:  30 * time.Second,
	}
}

// QueryHash is the dedupe key for a research query.
func QueryHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// pollInterval returns the wait before poll number n (0-based):
// 5s, 10s, 15s, ... capped at 30s.
func (c *Client) pollInterval(n int) time.Duration {
	d := c.pollBase + time.Duration(n)*c.pollStep
	if d > c.pollCap {
		return c.pollCap
	}
	return d
}

// StartJob submits a background research job and returns its ID.
func (c *Client) StartJob(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"agent":      c.agent,
		"input":      query,
		"background": true,
	})
	if err != nil {
		return "", &JobError{Stage: "submit", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interactions", bytes.NewReader(body))
	if err != nil {
		return "", &JobError{Stage: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &JobError{Stage: "submit", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", &JobError{Stage: "submit", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &JobError{Stage: "submit", Err: err}
	}
	if out.ID == "" {
		return "", &JobError{Stage: "submit", Err: fmt.Errorf("empty job id")}
	}
	c.log.WithField("job_id", out.ID).Info("research job submitted")
	return out.ID, nil
}

type jobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error"`
	Usage  struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
		TotalTokens  int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) getJob(ctx context.Context, jobID string) (jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/interactions/"+jobID, nil)
	if err != nil {
		return jobStatus{}, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.hc.Do(req)
	if err != nil {
		return jobStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return jobStatus{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var js jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		return jobStatus{}, err
	}
	return js, nil
}

// PollUntilDone polls a job until it completes, fails, or the timeout
// elapses. The poll interval grows by 5s each round up to the 30s cap.
// A zero timeout uses the configured default.
func (c *Client) PollUntilDone(ctx context.Context, jobID string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = c.rates.Timeout()
	}
	deadline := time.Now().Add(timeout)

	for n := 0; ; n++ {
		wait := c.pollInterval(n)
		if remaining := time.Until(deadline); remaining <= 0 {
			return Result{}, &JobError{JobID: jobID, Stage: "poll",
				Err: fmt.Errorf("timed out after %s", timeout)}
		} else if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Result{}, &JobError{JobID: jobID, Stage: "poll", Err: ctx.Err()}
		case <-time.After(wait):
		}

		js, err := c.getJob(ctx, jobID)
		if err != nil {
			return Result{}, &JobError{JobID: jobID, Stage: "poll", Err: err}
		}
		switch js.Status {
		case model.JobCompleted:
			usage := model.TokenUsage{
				InputTokens:  js.Usage.InputTokens,
				OutputTokens: js.Usage.OutputTokens,
				TotalTokens:  js.Usage.TotalTokens,
			}
			return Result{
				JobID:  jobID,
				Status: js.Status,
				Output: js.Output,
				Usage:  usage,
				Cost:   c.Cost(usage),
			}, nil
		case model.JobFailed:
			return Result{}, &JobError{JobID: jobID, Stage: "run",
				Err: fmt.Errorf("job failed: %s", js.Error)}
		case model.JobPending, model.JobRunning, "":
			// keep polling
		default:
			return Result{}, &JobError{JobID: jobID, Stage: "poll",
				Err: fmt.Errorf("unknown status %q", js.Status)}
		}
	}
}

// Cost converts research token usage into dollars using the configured
// per-million rates.
func (c *Client) Cost(usage model.TokenUsage) float64 {
	return float64(usage.InputTokens)/1e6*c.rates.InputRatePerM +
		float64(usage.OutputTokens)/1e6*c.rates.OutputRatePerM
}
