package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/service"
	"github.com/brightclass/api/internal/store"
)

// DispatchWorker retries engine deliveries that failed at submit
// time. asynq drives the backoff schedule; when the retry budget is
// spent the job is failed terminally instead of being retried again.
type DispatchWorker struct {
	jobStore *store.RedisJobStore
	dispatch *service.DispatchService
}

func NewDispatchWorker(jobStore *store.RedisJobStore, dispatch *service.DispatchService) *DispatchWorker {
	return &DispatchWorker{jobStore: jobStore, dispatch: dispatch}
}

// ProcessTask handles one redelivery attempt.
func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	jobID := taskPayload.JobID

	job, err := w.jobStore.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("redelivery for missing job %s dropped", jobID)
			return nil
		}
		return err
	}

	// Cancelled, force-deleted, or already delivered by a racing
	// writer: nothing left to do.
	if job.Status != model.JobStatusQueued {
		return nil
	}

	if err := w.dispatch.Dispatch(ctx, job); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			log.Printf("job %s delivery retries exhausted: %v", jobID, err)
			return w.dispatch.FailDelivery(ctx, jobID, err.Error())
		}
		return err // asynq reschedules with backoff
	}

	log.Printf("job %s delivered on redelivery attempt", jobID)
	return nil
}
