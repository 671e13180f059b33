package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brightclass/api/internal/client"
	"github.com/brightclass/api/internal/metrics"
	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/store"
	"github.com/brightclass/api/internal/websocket"
)

const TaskTypeDispatch = "jobs:dispatch"

// DispatchService delivers queued jobs to the external workflow
// engine. One outbound HTTP call per Dispatch invocation; idempotency
// is enforced upstream at Create, not here.
type DispatchService struct {
	store       *store.RedisJobStore
	engine      client.WorkflowIngress
	asynqClient *asynq.Client
	hub         *websocket.Hub
	maxRetry    int
}

func NewDispatchService(jobStore *store.RedisJobStore, engine client.WorkflowIngress, asynqClient *asynq.Client, hub *websocket.Hub, maxRetry int) *DispatchService {
	return &DispatchService{
		store:       jobStore,
		engine:      engine,
		asynqClient: asynqClient,
		hub:         hub,
		maxRetry:    maxRetry,
	}
}

// Dispatch serializes the job's payload plus routing metadata and
// posts it to the engine ingress. On transport success the job flips
// queued -> processing. On transport failure the job is left queued
// and ErrDispatchFailed is returned: the caller chooses between
// redelivery and a terminal error.
func (s *DispatchService) Dispatch(ctx context.Context, job *model.Job) error {
	env := &model.DispatchEnvelope{
		GroupKey:    job.GroupKey,
		Payload:     job.Payload,
		RoleHint:    job.Role,
		ClientMsgID: job.ClientMsgID,
		Extra:       job.Extra,
	}

	ack, err := s.engine.Submit(ctx, env)
	if err != nil {
		metrics.Dispatches.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	metrics.Dispatches.WithLabelValues("accepted").Inc()

	// A synchronous result in the accept reply is informational only.
	// The job stays processing until the callback path independently
	// confirms completion; the sync reply is not guaranteed to
	// reflect final work completion.
	if len(ack.Result) > 0 {
		log.Printf("engine returned a synchronous partial result for job %s (%d bytes), awaiting callback", job.ID, len(ack.Result))
	}

	workerRequestID := ack.RequestID
	updated, err := s.store.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued},
		model.JobStatusProcessing,
		func(j *model.Job) {
			if workerRequestID != "" {
				j.WorkerRequestID = workerRequestID
			}
		})
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			// Someone else moved the job while the engine call was in
			// flight (cancel, or a very fast callback). The delivery
			// stands; the state machine already advanced.
			metrics.StaleTransitions.Inc()
			log.Printf("job %s changed state during dispatch, leaving as-is", job.ID)
			return nil
		}
		return err
	}

	// The engine is not guaranteed to echo client_msg_id back, so its
	// own request id becomes a second correlation key.
	if workerRequestID != "" {
		if err := s.store.AddCorrelation(ctx, workerRequestID, job.ID); err != nil {
			log.Printf("failed to index worker request id %s for job %s: %v", workerRequestID, job.ID, err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastStatus(updated)
	}
	return nil
}

// EnqueueRedelivery schedules a later delivery attempt for a job that
// could not reach the engine. asynq owns the retry/backoff schedule.
func (s *DispatchService) EnqueueRedelivery(job *model.Job) error {
	if s.asynqClient == nil {
		return fmt.Errorf("redelivery queue not configured")
	}
	payload, err := json.Marshal(map[string]string{"jobId": job.ID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDispatch, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("dispatch"),
		asynq.MaxRetry(s.maxRetry),
		asynq.ProcessIn(5*time.Second),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// FailDelivery marks a queued job as terminally errored after
// delivery attempts are exhausted.
func (s *DispatchService) FailDelivery(ctx context.Context, jobID, reason string) error {
	updated, err := s.store.Transition(ctx, jobID,
		[]model.JobStatus{model.JobStatusQueued},
		model.JobStatusError,
		func(j *model.Job) {
			j.ErrorMessage = reason
		})
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			metrics.StaleTransitions.Inc()
			return nil
		}
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastStatus(updated)
	}
	return nil
}
