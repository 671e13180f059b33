package model

import (
	"encoding/json"
	"time"
)

// JobCreateRequest is the body for POST /api/jobs. ClientMsgID is
// optional; the server generates one when absent, but retry-safe
// clients should supply their own.
type JobCreateRequest struct {
	GroupKey    string                 `json:"group_key" validate:"required,max=128"`
	ClientMsgID string                 `json:"client_msg_id" validate:"omitempty,max=64"`
	Role        JobRole                `json:"role" validate:"required,oneof=user assistant system"`
	Kind        JobKind                `json:"kind" validate:"required,oneof=user_request final tool_invocation"`
	ParentID    string                 `json:"parent_id" validate:"omitempty,max=64"`
	Payload     json.RawMessage        `json:"payload" validate:"required"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// JobCreateResponse wraps the job with the dedup outcome.
type JobCreateResponse struct {
	Job     *Job `json:"job"`
	Created bool `json:"created"`
}

// JobListResponse is the Status Observer poll response.
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
	// NextSince is the creation key of the newest job returned, to be
	// echoed back as ?since= on the next poll.
	NextSince string `json:"nextSince,omitempty"`
}

// CallbackRequest is the body the workflow engine (or any trusted
// caller) posts to /callbacks/worker. Exactly one of Result or Error
// is expected.
type CallbackRequest struct {
	CorrelationKey string          `json:"correlation_key" validate:"required,max=128"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ForceStatusRequest is the administrative force-status body.
type ForceStatusRequest struct {
	Status JobStatus `json:"status" validate:"required"`
}

// DispatchEnvelope is the JSON body delivered to the workflow
// engine's ingress endpoint.
type DispatchEnvelope struct {
	GroupKey    string                 `json:"group_key"`
	Payload     json.RawMessage        `json:"payload"`
	RoleHint    JobRole                `json:"role_hint"`
	ClientMsgID string                 `json:"client_msg_id"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// WebSocket event types
const (
	WSMessageTypeStatus = "status"
)

// WSStatusMessage is broadcast to thread subscribers whenever a job
// in the thread changes status on the normal write path.
type WSStatusMessage struct {
	Type        string     `json:"type"`
	JobID       string     `json:"jobId"`
	GroupKey    string     `json:"groupKey"`
	Status      JobStatus  `json:"status"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	HasResult   bool       `json:"hasResult,omitempty"`
	ErrorOutput string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
