package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
)

// SubmissionError means the extraction service rejected the job or was
// unreachable at submit time.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("extraction submit failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// JobFailedError means the extraction service reported the job as failed.
type JobFailedError struct {
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("extraction job failed: %s", e.Reason)
}

// PollTimeoutError means the attempt budget ran out before a terminal state
// was observed; the orchestrator treats the job as timed_out.
type PollTimeoutError struct {
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("extraction job not terminal after %d poll attempts", e.Attempts)
}

// Client talks to the extraction service: one submit call, then status polls
// at a fixed interval until a terminal state or the attempt budget runs out.
type Client struct {
	extractEndpoint   string
	jobStatusEndpoint string
	pollInterval      time.Duration
	maxPollAttempts   int
	client            *http.Client
	logger            *utils.Logger
}

func NewClient(extractEndpoint, jobStatusEndpoint string, pollInterval time.Duration, maxPollAttempts int, requestTimeout time.Duration, logger *utils.Logger) *Client {
	return &Client{
		extractEndpoint:   extractEndpoint,
		jobStatusEndpoint: jobStatusEndpoint,
		pollInterval:      pollInterval,
		maxPollAttempts:   maxPollAttempts,
		client:            &http.Client{Timeout: requestTimeout},
		logger:            logger,
	}
}

type submitResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

type jobStatusResponse struct {
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
	Result *struct {
		FinalSummary string `json:"final_summary"`
	} `json:"result,omitempty"`
}

// Submit sends the payload and returns the assigned job ID. Any non-success
// response or malformed body fails the stage immediately.
func (c *Client) Submit(ctx context.Context, payload models.ClinicalDataPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.extractEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &SubmissionError{Err: fmt.Errorf("extract endpoint returned status %d: %s", resp.StatusCode, string(data))}
	}

	var sub submitResponse
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if sub.JobID == "" {
		return "", &SubmissionError{Err: fmt.Errorf("no job_id in extract response")}
	}

	c.logger.Info("Extraction job submitted", "job_id", sub.JobID, "documents", len(payload.ClinicalData))
	return sub.JobID, nil
}

// Poll queries job status every pollInterval until the job succeeds, fails,
// or the attempt budget is exhausted. A transient call failure (network
// error, malformed body) consumes an attempt and is retried on the next tick
// rather than aborting the loop; the budget never resets.
func (c *Client) Poll(ctx context.Context, jobID string) (string, error) {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		status, err := c.getJobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("Poll attempt failed", "job_id", jobID, "attempt", attempt, "error", err)
		} else {
			switch models.JobState(status.State) {
			case models.JobSucceeded:
				if status.Result == nil || status.Result.FinalSummary == "" {
					return "", &JobFailedError{Reason: "job succeeded without a summary"}
				}
				return status.Result.FinalSummary, nil
			case models.JobFailed:
				reason := status.Error
				if reason == "" {
					reason = "unknown error"
				}
				return "", &JobFailedError{Reason: reason}
			default:
				c.logger.Debug("Job not terminal yet", "job_id", jobID, "state", status.State, "attempt", attempt)
			}
		}

		if attempt == c.maxPollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return "", &PollTimeoutError{Attempts: c.maxPollAttempts}
}

func (c *Client) getJobStatus(ctx context.Context, jobID string) (*jobStatusResponse, error) {
	endpoint := fmt.Sprintf("%s?job_id=%s", c.jobStatusEndpoint, url.QueryEscape(jobID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("job status endpoint returned status %d", resp.StatusCode)
	}

	var status jobStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status response: %w", err)
	}

	return &status, nil
}
