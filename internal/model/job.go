package model

import (
	"encoding/json"
	"time"
)

// Job represents one unit of asynchronous work: a companion message,
// an AI tool invocation, or a generic ingress request. All three
// families share this record and the same status vocabulary.
type Job struct {
	ID          string    `json:"id"`
	GroupKey    string    `json:"groupKey"`
	ClientMsgID string    `json:"clientMsgId"`
	Role        JobRole   `json:"role"`
	Kind        JobKind   `json:"kind"`
	Status      JobStatus `json:"status"`
	ParentID    string    `json:"parentId,omitempty"`

	// WorkerRequestID is the id the workflow engine assigned when it
	// accepted the dispatch, if it reported one. Either this or
	// ClientMsgID correlates a callback back to the job.
	WorkerRequestID string `json:"workerRequestId,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	// Extra carries per-room behavioral overrides forwarded verbatim
	// to the workflow engine at dispatch time.
	Extra map[string]interface{} `json:"extra,omitempty"`

	Result       *JobResult `json:"result,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has reached a state with no
// further automatic transition.
func (j *Job) Terminal() bool {
	return TerminalStatuses[j.Status]
}

// JobResult is the canonical result shape. The workflow engine
// replies in several shapes; the callback path normalizes them all
// into this before anything else sees them.
type JobResult struct {
	Text  string                 `json:"text,omitempty"`
	Stats map[string]interface{} `json:"stats,omitempty"`
}

// Merge folds other into r field-wise. Existing text is kept unless
// other carries non-empty text; stats keys from other win per key.
// A metadata-only callback can therefore never erase an earlier
// content-bearing one.
func (r *JobResult) Merge(other *JobResult) {
	if other == nil {
		return
	}
	if other.Text != "" {
		r.Text = other.Text
	}
	if len(other.Stats) > 0 {
		if r.Stats == nil {
			r.Stats = make(map[string]interface{}, len(other.Stats))
		}
		for k, v := range other.Stats {
			r.Stats[k] = v
		}
	}
}
