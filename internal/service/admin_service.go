package service

import (
	"context"
	"log"
	"time"

	"github.com/brightclass/api/internal/metrics"
	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/store"
)

// AdminService is the safe mutator: a narrow write path for
// administrative soft-delete and cleanup of stuck jobs. It routes
// through the store's force-status procedure, the one sanctioned
// bypass of the normal state machine, and deliberately skips the
// broadcast hub so no downstream side effects fire.
type AdminService struct {
	store      *store.RedisJobStore
	stuckAfter time.Duration
}

func NewAdminService(jobStore *store.RedisJobStore, stuckAfter time.Duration) *AdminService {
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	return &AdminService{store: jobStore, stuckAfter: stuckAfter}
}

// ForceStatus overrides a job's status regardless of its current
// state. Deleted jobs cannot be changed again; a force to deleted
// also severs the job's correlation keys so late worker callbacks
// find nothing to resurrect.
func (s *AdminService) ForceStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	updated, err := s.store.ForceStatus(ctx, jobID, status)
	if err != nil {
		return nil, err
	}
	metrics.ForcedStatuses.WithLabelValues(string(status)).Inc()
	log.Printf("job %s force-set to %s", jobID, status)
	return updated, nil
}

// ListStuck returns jobs that have been processing longer than the
// configured threshold, the usual candidates for force-delete.
func (s *AdminService) ListStuck(ctx context.Context, limit int64) ([]*model.Job, error) {
	cutoff := time.Now().Add(-s.stuckAfter).Unix()
	return s.store.ListStuck(ctx, cutoff, limit)
}
