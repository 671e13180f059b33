package model

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusDeleted    JobStatus = "deleted"
)

var ValidStatuses = []JobStatus{
	JobStatusQueued, JobStatusProcessing, JobStatusCompleted,
	JobStatusError, JobStatusCancelled, JobStatusDeleted,
}

// TerminalStatuses are states with no further automatic transition.
var TerminalStatuses = map[JobStatus]bool{
	JobStatusCompleted: true,
	JobStatusError:     true,
	JobStatusCancelled: true,
	JobStatusDeleted:   true,
}

// AllowedTransitions is the monotonic state machine for the normal
// write path. Administrative force-status is the only sanctioned
// bypass and does not consult this table.
var AllowedTransitions = map[JobStatus][]JobStatus{
	// queued -> completed covers a worker that writes its result back
	// before the dispatcher's processing flip lands.
	JobStatusQueued:     {JobStatusProcessing, JobStatusCompleted, JobStatusError, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusError},
	JobStatusCompleted:  {},
	JobStatusError:      {},
	JobStatusCancelled:  {},
	JobStatusDeleted:    {},
}

// IsAllowedTransition reports whether from -> to is a legal move on
// the normal write path. Same-state writes are allowed (idempotent
// redeliveries).
func IsAllowedTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	for _, target := range AllowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known status value.
func IsValidStatus(s JobStatus) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Job roles — who produced the job
type JobRole string

const (
	RoleUser      JobRole = "user"
	RoleAssistant JobRole = "assistant"
	RoleSystem    JobRole = "system"
)

var ValidRoles = []JobRole{RoleUser, RoleAssistant, RoleSystem}

// Job kinds — what shape of work the job represents
type JobKind string

const (
	KindUserRequest    JobKind = "user_request"
	KindFinal          JobKind = "final"
	KindToolInvocation JobKind = "tool_invocation"
)

var ValidKinds = []JobKind{KindUserRequest, KindFinal, KindToolInvocation}
