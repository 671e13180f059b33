package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightclass/api/internal/model"
)

// ForceStatus overrides a job's status outside the normal state
// machine. Administrative use only; every other writer must go
// through Transition. The record is rewritten through the typed Job
// struct, which patches only status and updatedAt: the write-once
// payload is carried as raw JSON and survives byte-for-byte, and no
// dispatch or broadcast hook can fire off this path. Forcing to
// deleted also drops the job's correlation keys so late worker
// callbacks cannot resurrect it.
func (s *RedisJobStore) ForceStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	if !model.IsValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}

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
		if job.Status == model.JobStatusDeleted {
			return ErrStaleTransition
		}

		prev := job.Status
		job.Status = status
		job.UpdatedAt = time.Now().UTC()

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, recordKey, out, s.ttl)
		pipe.ZRem(ctx, statusIndexKey(prev), jobID)
		pipe.ZAdd(ctx, statusIndexKey(status), redis.Z{
			Score:  float64(job.UpdatedAt.Unix()),
			Member: jobID,
		})
		if status == model.JobStatusDeleted {
			pipe.Del(ctx, jobCorrKey(job.ClientMsgID))
			if job.WorkerRequestID != "" {
				pipe.Del(ctx, jobCorrKey(job.WorkerRequestID))
			}
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
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrStaleTransition
}
