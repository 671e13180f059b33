package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/brightclass/api/internal/metrics"
	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/store"
	"github.com/brightclass/api/internal/websocket"
)

// CallbackService is the correlator: it matches asynchronous worker
// results back to their jobs and drives them to a terminal state.
// The engine delivers at least once, so every entry point here is
// idempotent — a redelivery for an already-terminal job is a no-op
// that reports success.
type CallbackService struct {
	store *store.RedisJobStore
	hub   *websocket.Hub
}

func NewCallbackService(jobStore *store.RedisJobStore, hub *websocket.Hub) *CallbackService {
	return &CallbackService{store: jobStore, hub: hub}
}

// Complete records a worker result. correlationKey may be the
// original client msg id or the engine's own request id; the engine
// is not guaranteed to echo the same id space it was given.
func (s *CallbackService) Complete(ctx context.Context, correlationKey string, raw json.RawMessage) error {
	job, err := s.store.FindByCorrelation(ctx, correlationKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.DanglingCorrelations.Inc()
			log.Printf("result for unknown correlation key %s dropped (missing or deleted job)", correlationKey)
			return ErrCorrelationNotFound
		}
		return err
	}
	if job.Terminal() {
		metrics.Callbacks.WithLabelValues("redelivery").Inc()
		log.Printf("redelivered result for terminal job %s (%s) ignored", job.ID, job.Status)
		return nil
	}

	incoming := NormalizeResult(raw)
	updated, err := s.store.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued, model.JobStatusProcessing},
		model.JobStatusCompleted,
		func(j *model.Job) {
			if j.Result == nil {
				j.Result = &model.JobResult{}
			}
			j.Result.Merge(incoming)
			j.ErrorMessage = ""
		})
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			// Raced another terminal writer; whoever won, the job is
			// settled and the redelivery contract says report success.
			metrics.StaleTransitions.Inc()
			return nil
		}
		return err
	}
	metrics.Callbacks.WithLabelValues("completed").Inc()
	if s.hub != nil {
		s.hub.BroadcastStatus(updated)
	}
	return nil
}

// Fail records a worker-reported failure verbatim.
func (s *CallbackService) Fail(ctx context.Context, correlationKey, errMessage string) error {
	job, err := s.store.FindByCorrelation(ctx, correlationKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.DanglingCorrelations.Inc()
			log.Printf("failure report for unknown correlation key %s dropped", correlationKey)
			return ErrCorrelationNotFound
		}
		return err
	}
	if job.Terminal() {
		metrics.Callbacks.WithLabelValues("redelivery").Inc()
		return nil
	}

	updated, err := s.store.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued, model.JobStatusProcessing},
		model.JobStatusError,
		func(j *model.Job) {
			j.ErrorMessage = errMessage
			// A terminal job carries exactly one of result or error.
			j.Result = nil
		})
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			metrics.StaleTransitions.Inc()
			return nil
		}
		return err
	}
	metrics.Callbacks.WithLabelValues("failed").Inc()
	if s.hub != nil {
		s.hub.BroadcastStatus(updated)
	}
	return nil
}

// textKeys are checked in order for the primary textual payload of an
// object-shaped reply.
var textKeys = []string{"text", "content", "output", "message", "answer"}

// NormalizeResult folds the engine's heterogeneous reply shapes into
// the canonical result: a single object, an array whose first element
// is authoritative, or a bare content string. Anything unparseable is
// kept whole as text rather than thrown away.
func NormalizeResult(raw json.RawMessage) *model.JobResult {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return &model.JobResult{Text: strings.TrimSpace(string(raw))}
	}
	return normalizeValue(v)
}

func normalizeValue(v interface{}) *model.JobResult {
	switch val := v.(type) {
	case string:
		return &model.JobResult{Text: val}
	case []interface{}:
		if len(val) == 0 {
			return &model.JobResult{}
		}
		return normalizeValue(val[0])
	case map[string]interface{}:
		res := &model.JobResult{}
		for _, key := range textKeys {
			if s, ok := val[key].(string); ok && s != "" {
				res.Text = s
				delete(val, key)
				break
			}
		}
		// Everything else is metadata: model identifier, citations,
		// usage counters, and whatever the engine adds next.
		for k, meta := range val {
			if res.Stats == nil {
				res.Stats = make(map[string]interface{})
			}
			res.Stats[k] = meta
		}
		return res
	case nil:
		return &model.JobResult{}
	default:
		return &model.JobResult{Stats: map[string]interface{}{"value": val}}
	}
}
