// Package store persists jobs in Redis. Every write is either an
// insert-or-fetch (Create) or a conditional update (Transition), so
// the store is safe for any number of concurrent writers without
// locks held across calls.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brightclass/api/internal/model"
)

const (
	jobRecordKeyPrefix = "job:rec:"
	jobDedupeKeyPrefix = "job:dedupe:"
	jobCorrKeyPrefix   = "job:corr:"
	groupIndexPrefix   = "jobs:group:"
	statusIndexPrefix  = "jobs:status:"

	txRetries = 5
)

// RedisJobStore is the durable record of all jobs. One instance
// serves all three job families.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a job store over an existing Redis client. ttl <= 0
// keeps records forever.
func New(client *redis.Client, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{client: client, ttl: ttl}
}

// Create inserts a new queued job, or returns the existing one when a
// job with the same (groupKey, clientMsgID) already exists. The
// dedupe decision is a single SetNX, never a read-then-write.
func (s *RedisJobStore) Create(ctx context.Context, req *model.JobCreateRequest) (*model.Job, bool, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:          uuid.New().String(),
		GroupKey:    req.GroupKey,
		ClientMsgID: req.ClientMsgID,
		Role:        req.Role,
		Kind:        req.Kind,
		ParentID:    req.ParentID,
		Status:      model.JobStatusQueued,
		Payload:     req.Payload,
		Extra:       req.Extra,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	dedupeKey := jobDedupeKey(req.GroupKey, req.ClientMsgID)
	won, err := s.client.SetNX(ctx, dedupeKey, job.ID, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("dedupe setnx: %w", err)
	}
	if !won {
		existingID, err := s.client.Get(ctx, dedupeKey).Result()
		if err != nil {
			return nil, false, ErrDuplicateKeyRace
		}
		existing, err := s.Get(ctx, existingID)
		if err != nil {
			// Winner holds the dedupe key but has not finished
			// writing the record yet.
			if errors.Is(err, ErrNotFound) {
				return nil, false, ErrDuplicateKeyRace
			}
			return nil, false, err
		}
		return existing, false, nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, false, fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobRecordKey(job.ID), data, s.ttl)
	pipe.Set(ctx, jobCorrKey(job.ClientMsgID), job.ID, s.ttl)
	pipe.ZAdd(ctx, groupIndexKey(job.GroupKey), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: job.ID,
	})
	pipe.ZAdd(ctx, statusIndexKey(model.JobStatusQueued), redis.Z{
		Score:  float64(now.Unix()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		// Release the dedupe key so a retry can claim it; leaving it
		// pointing at a record that was never written would wedge the
		// idempotency key until its TTL expires.
		s.client.Del(ctx, dedupeKey)
		return nil, false, fmt.Errorf("write job: %w", err)
	}
	return job, true, nil
}

// Get returns a job by id.
func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobRecordKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// GetByGroup returns all non-deleted jobs in a group in creation
// order.
func (s *RedisJobStore) GetByGroup(ctx context.Context, groupKey string) ([]*model.Job, error) {
	ids, err := s.client.ZRange(ctx, groupIndexKey(groupKey), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Job{}, nil
	}

	// Batch fetch records to avoid N+1 round trips.
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, jobRecordKey(id))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		data, err := cmds[id].Bytes()
		if err != nil {
			continue
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if job.Status == model.JobStatusDeleted {
			continue
		}
		out = append(out, &job)
	}
	// Creation order, matching the group index score. Caller-supplied
	// keys are not guaranteed to sort chronologically, so the key is
	// only a tiebreak.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ClientMsgID < out[j].ClientMsgID
	})
	return out, nil
}

// FindByCorrelation resolves a correlation key (client msg id or
// worker request id) to its job. Deleted jobs are not resolvable:
// a force-deleted job's late callbacks must not resurrect it.
func (s *RedisJobStore) FindByCorrelation(ctx context.Context, key string) (*model.Job, error) {
	jobID, err := s.client.Get(ctx, jobCorrKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusDeleted {
		return nil, ErrNotFound
	}
	return job, nil
}

// AddCorrelation registers an additional correlation key for a job,
// used when the workflow engine assigns its own request id at
// dispatch time.
func (s *RedisJobStore) AddCorrelation(ctx context.Context, key, jobID string) error {
	if key == "" || jobID == "" {
		return fmt.Errorf("correlation key and job id required")
	}
	return s.client.Set(ctx, jobCorrKey(key), jobID, s.ttl).Err()
}

// Transition conditionally moves a job to toStatus if its current
// status is in fromStatuses, applying mutate to the record inside the
// same optimistic transaction. Returns ErrStaleTransition when the
// guard fails. Lifecycle timestamps are maintained here: StartedAt on
// entry to processing, CompletedAt on entry to a terminal status.
func (s *RedisJobStore) Transition(ctx context.Context, jobID string, fromStatuses []model.JobStatus, toStatus model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	recordKey := jobRecordKey(jobID)
	var updated *model.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, recordKey).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}

		if !statusIn(job.Status, fromStatuses) {
			return ErrStaleTransition
		}
		if !model.IsAllowedTransition(job.Status, toStatus) {
			return ErrStaleTransition
		}

		prev := job.Status
		now := time.Now().UTC()
		job.Status = toStatus
		job.UpdatedAt = now
		if toStatus == model.JobStatusProcessing && job.StartedAt == nil {
			t := now
			job.StartedAt = &t
		}
		if model.TerminalStatuses[toStatus] && job.CompletedAt == nil {
			t := now
			job.CompletedAt = &t
		}
		if mutate != nil {
			mutate(&job)
		}

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, recordKey, out, s.ttl)
		if prev != toStatus {
			pipe.ZRem(ctx, statusIndexKey(prev), jobID)
			pipe.ZAdd(ctx, statusIndexKey(toStatus), redis.Z{
				Score:  float64(now.Unix()),
				Member: jobID,
			})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = &job
		return nil
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, recordKey)
		if err == redis.TxFailedErr {
			continue // record changed under us, re-read and re-check
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrStaleTransition
}

// ListStuck returns non-deleted jobs that entered processing at or
// before the given unix timestamp, oldest first.
func (s *RedisJobStore) ListStuck(ctx context.Context, beforeUnix int64, limit int64) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.ZRangeByScore(ctx, statusIndexKey(model.JobStatusProcessing), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", beforeUnix),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisJobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func statusIn(s model.JobStatus, set []model.JobStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func jobRecordKey(id string) string     { return jobRecordKeyPrefix + id }
func jobCorrKey(key string) string      { return jobCorrKeyPrefix + key }
func groupIndexKey(group string) string { return groupIndexPrefix + group }

func jobDedupeKey(group, k string) string {
	return jobDedupeKeyPrefix + group + ":" + k
}
func statusIndexKey(s model.JobStatus) string {
	return statusIndexPrefix + string(s)
}
