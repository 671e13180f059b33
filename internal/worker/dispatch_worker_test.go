package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/brightclass/api/internal/client"
	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/service"
	"github.com/brightclass/api/internal/store"
)

type fakeEngine struct {
	err   error
	calls int
}

func (f *fakeEngine) Submit(_ context.Context, _ *model.DispatchEnvelope) (*client.SubmitAck, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &client.SubmitAck{RequestID: "wf-1"}, nil
}

func newTestWorker(t *testing.T, engine client.WorkflowIngress) (*DispatchWorker, *store.RedisJobStore) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	rc := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rc.Close() })
	jobStore := store.New(rc, 0)
	dispatch := service.NewDispatchService(jobStore, engine, nil, nil, 3)
	return NewDispatchWorker(jobStore, dispatch), jobStore
}

func dispatchTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return asynq.NewTask(service.TaskTypeDispatch, payload)
}

func queuedJob(t *testing.T, s *store.RedisJobStore) *model.Job {
	t.Helper()
	job, _, err := s.Create(context.Background(), &model.JobCreateRequest{
		GroupKey:    "t1",
		ClientMsgID: "k1",
		Role:        model.RoleUser,
		Kind:        model.KindUserRequest,
		Payload:     json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

func TestRedeliverySucceeds(t *testing.T) {
	engine := &fakeEngine{}
	w, s := newTestWorker(t, engine)
	job := queuedJob(t, s)

	if err := w.ProcessTask(context.Background(), dispatchTask(t, job.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := s.Get(context.Background(), job.ID)
	if got.Status != model.JobStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
	if engine.calls != 1 {
		t.Fatalf("expected one delivery, got %d", engine.calls)
	}
}

func TestRedeliverySkipsSettledJobs(t *testing.T) {
	engine := &fakeEngine{}
	w, s := newTestWorker(t, engine)
	job := queuedJob(t, s)

	if _, err := s.Transition(context.Background(), job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := w.ProcessTask(context.Background(), dispatchTask(t, job.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if engine.calls != 0 {
		t.Fatal("cancelled job must not be delivered")
	}
}

func TestRedeliveryMissingJobDropped(t *testing.T) {
	w, _ := newTestWorker(t, &fakeEngine{})
	if err := w.ProcessTask(context.Background(), dispatchTask(t, "gone")); err != nil {
		t.Fatalf("missing job should be dropped, got %v", err)
	}
}

func TestRedeliveryExhaustionFailsJob(t *testing.T) {
	engine := &fakeEngine{err: errors.New("still down")}
	w, s := newTestWorker(t, engine)
	job := queuedJob(t, s)

	// Outside an asynq-managed context the retry budget reads as
	// spent, which exercises the exhaustion path directly.
	if err := w.ProcessTask(context.Background(), dispatchTask(t, job.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := s.Get(context.Background(), job.ID)
	if got.Status != model.JobStatusError {
		t.Fatalf("expected terminal error after exhausted retries, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("error message must be populated")
	}
}
