package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/brightclass/api/internal/metrics"
	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/store"
	"github.com/brightclass/api/internal/websocket"
	"github.com/brightclass/api/pkg/keygen"
)

// JobService handles job submission and the observer read path.
type JobService struct {
	store             *store.RedisJobStore
	dispatch          *DispatchService
	hub               *websocket.Hub
	redeliveryEnabled bool
}

func NewJobService(jobStore *store.RedisJobStore, dispatch *DispatchService, hub *websocket.Hub, redeliveryEnabled bool) *JobService {
	return &JobService{
		store:             jobStore,
		dispatch:          dispatch,
		hub:               hub,
		redeliveryEnabled: redeliveryEnabled,
	}
}

// Submit records the job idempotently and hands it to the dispatcher.
// A duplicate submission returns the existing job's current state and
// touches nothing. Dispatch transport failure either queues a
// redelivery attempt or fails the job terminally, depending on
// configuration.
func (s *JobService) Submit(ctx context.Context, req *model.JobCreateRequest) (*model.JobCreateResponse, error) {
	if req.ClientMsgID == "" {
		req.ClientMsgID = keygen.NewKey()
	}

	job, created, err := s.store.Create(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKeyRace) {
			// The concurrent winner had not finished writing yet.
			job, err = s.refetch(ctx, req)
			if err != nil {
				return nil, err
			}
			metrics.DuplicateSubmissions.Inc()
			return &model.JobCreateResponse{Job: job, Created: false}, nil
		}
		return nil, err
	}
	if !created {
		metrics.DuplicateSubmissions.Inc()
		return &model.JobCreateResponse{Job: job, Created: false}, nil
	}
	metrics.JobsCreated.WithLabelValues(string(job.Kind)).Inc()
	if s.hub != nil {
		s.hub.BroadcastStatus(job)
	}

	if err := s.dispatch.Dispatch(ctx, job); err != nil {
		if !errors.Is(err, ErrDispatchFailed) {
			return nil, err
		}
		if s.redeliveryEnabled {
			if qerr := s.dispatch.EnqueueRedelivery(job); qerr != nil {
				log.Printf("redelivery enqueue failed for job %s: %v", job.ID, qerr)
				if ferr := s.dispatch.FailDelivery(ctx, job.ID, err.Error()); ferr != nil {
					return nil, ferr
				}
			}
		} else {
			if ferr := s.dispatch.FailDelivery(ctx, job.ID, err.Error()); ferr != nil {
				return nil, ferr
			}
		}
	}

	// Re-read so the caller sees the post-dispatch state.
	job, err = s.store.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return &model.JobCreateResponse{Job: job, Created: true}, nil
}

func (s *JobService) refetch(ctx context.Context, req *model.JobCreateRequest) (*model.Job, error) {
	jobs, err := s.store.GetByGroup(ctx, req.GroupKey)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.ClientMsgID == req.ClientMsgID {
			return j, nil
		}
	}
	return nil, fmt.Errorf("duplicate submission race did not settle")
}

// Get returns a single job.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Poll is the Status Observer read path: all jobs in a group created
// after sinceKey, or updated after the instant sinceKey was minted,
// in creation order. Pure read; any number of concurrent observers
// never contend.
func (s *JobService) Poll(ctx context.Context, groupKey, sinceKey string) ([]*model.Job, error) {
	jobs, err := s.store.GetByGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	if sinceKey == "" {
		return jobs, nil
	}

	sinceTime := keygen.TimeOf(sinceKey)
	out := make([]*model.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.ClientMsgID > sinceKey {
			out = append(out, j)
			continue
		}
		// A job the caller already saw may have merged a late result
		// since; surface it again.
		if !sinceTime.IsZero() && j.UpdatedAt.After(sinceTime) {
			out = append(out, j)
		}
	}
	return out, nil
}

// Cancel moves a queued job to cancelled. Once the job is processing
// the engine cannot be interrupted; cancellation past that point is
// advisory only and rejected here.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	updated, err := s.store.Transition(ctx, jobID,
		[]model.JobStatus{model.JobStatusQueued},
		model.JobStatusCancelled, nil)
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			metrics.StaleTransitions.Inc()
			return nil, ErrNotCancellable
		}
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastStatus(updated)
	}
	return updated, nil
}
