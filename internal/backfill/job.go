package backfill

import (
	"encoding/json"
	"fmt"
)

// Job asks for one stored message to be embedded. The optional location
// fields are accepted for compatibility with queue producers that address
// rows by schema and table; they are echoed back unchanged.
type Job struct {
	JobID           int64  `json:"jobId"`
	ID              string `json:"id"`
	Schema          string `json:"schema,omitempty"`
	Table           string `json:"table,omitempty"`
	ContentFunction string `json:"contentFunction,omitempty"`
	EmbeddingColumn string `json:"embeddingColumn,omitempty"`
}

// FailedJob is a Job with the reason it failed.
type FailedJob struct {
	Job
	Error string `json:"error"`
}

// ParseJobs decodes a JSON array of jobs. Every job needs a numeric jobId
// and a non-empty string id.
func ParseJobs(data []byte) ([]Job, error) {
	var raw []struct {
		Job
		JobID *json.Number `json:"jobId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	jobs := make([]Job, 0, len(raw))
	for i, r := range raw {
		if r.JobID == nil {
			return nil, fmt.Errorf("invalid request body: [%d].jobId is required", i)
		}
		n, err := r.JobID.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid request body: [%d].jobId must be an integer", i)
		}
		if r.ID == "" {
			return nil, fmt.Errorf("invalid request body: [%d].id is required", i)
		}
		job := r.Job
		job.JobID = n
		jobs = append(jobs, job)
	}
	return jobs, nil
}
