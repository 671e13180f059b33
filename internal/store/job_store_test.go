package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brightclass/api/internal/model"
)

func newTestStore(t *testing.T) *RedisJobStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, 0)
}

func createReq(group, key string) *model.JobCreateRequest {
	return &model.JobCreateRequest{
		GroupKey:    group,
		ClientMsgID: key,
		Role:        model.RoleUser,
		Kind:        model.KindUserRequest,
		Payload:     json.RawMessage(`{"text":"hi"}`),
	}
}

func TestCreateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job1, created, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first submission")
	}
	if job1.Status != model.JobStatusQueued {
		t.Fatalf("expected queued, got %s", job1.Status)
	}

	job2, created, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("expected created=false on duplicate submission")
	}
	if job2.ID != job1.ID {
		t.Fatalf("duplicate returned different job: %s vs %s", job2.ID, job1.ID)
	}

	jobs, err := s.GetByGroup(ctx, "t1")
	if err != nil {
		t.Fatalf("get by group: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(jobs))
	}
}

func TestCreateConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	createdFlags := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, created, err := s.Create(ctx, createReq("t1", "k1"))
			if err != nil {
				// Benign race: the winner had not finished writing.
				if err == ErrDuplicateKeyRace {
					return
				}
				t.Errorf("create: %v", err)
				return
			}
			ids[i] = job.ID
			createdFlags[i] = created
		}(i)
	}
	wg.Wait()

	wins := 0
	var winner string
	for i := 0; i < n; i++ {
		if createdFlags[i] {
			wins++
			winner = ids[i]
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one created=true, got %d", wins)
	}
	for i := 0; i < n; i++ {
		if ids[i] != "" && ids[i] != winner {
			t.Fatalf("two distinct jobs created: %s vs %s", ids[i], winner)
		}
	}
}

// pipelineFailer simulates a connection dying between the dedupe
// SetNX and the record write.
type pipelineFailer struct {
	fail *bool
}

func (p pipelineFailer) DialHook(next redis.DialHook) redis.DialHook { return next }

func (p pipelineFailer) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (p pipelineFailer) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if *p.fail {
			return errors.New("connection reset by peer")
		}
		return next(ctx, cmds)
	}
}

func TestCreateWriteFailureReleasesDedupeKey(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	fail := false
	client.AddHook(pipelineFailer{fail: &fail})
	s := New(client, 0)
	ctx := context.Background()

	fail = true
	if _, _, err := s.Create(ctx, createReq("t1", "k1")); err == nil {
		t.Fatal("expected write failure")
	}

	// The failed attempt must not wedge the idempotency key: a retry
	// claims it and creates the job.
	fail = false
	job, created, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if !created {
		t.Fatal("retry must win the released dedupe key")
	}
	if _, err := s.Get(ctx, job.ID); err != nil {
		t.Fatalf("get after retry: %v", err)
	}
	if _, err := s.FindByCorrelation(ctx, "k1"); err != nil {
		t.Fatalf("correlation after retry: %v", err)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Fatal("lifecycle timestamps must be unset at creation")
	}

	job, err = s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusProcessing, nil)
	if err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if job.StartedAt == nil {
		t.Fatal("StartedAt must be set on entry to processing")
	}
	if job.CompletedAt != nil {
		t.Fatal("CompletedAt must not be set yet")
	}

	job, err = s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusProcessing}, model.JobStatusCompleted,
		func(j *model.Job) {
			j.Result = &model.JobResult{Text: "done"}
		})
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if job.CompletedAt == nil {
		t.Fatal("CompletedAt must be set on terminal transition")
	}
	if job.Result == nil || job.Result.Text != "done" {
		t.Fatalf("mutate not applied: %+v", job.Result)
	}
}

func TestTransitionStaleGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Guard set does not match the current status.
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusProcessing}, model.JobStatusCompleted, nil); err != ErrStaleTransition {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}

	// Backwards moves are rejected even with a matching guard.
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusProcessing, nil); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusProcessing}, model.JobStatusCompleted, nil); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusCompleted}, model.JobStatusProcessing, nil); err != ErrStaleTransition {
		t.Fatalf("expected ErrStaleTransition on completed->processing, got %v", err)
	}
}

func TestTransitionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Transition(context.Background(), "nope",
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusProcessing, nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByGroupOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Caller-supplied keys need not sort chronologically; the read
	// path orders by creation time, not by key.
	keys := []string{"zulu", "alpha", "mike"}
	for _, k := range keys {
		if _, _, err := s.Create(ctx, createReq("t1", k)); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	jobs, err := s.GetByGroup(ctx, "t1")
	if err != nil {
		t.Fatalf("get by group: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.ClientMsgID != keys[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, j.ClientMsgID, keys[i])
		}
	}
}

func TestFindByCorrelation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FindByCorrelation(ctx, "k1")
	if err != nil {
		t.Fatalf("find by client key: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("wrong job: %s", got.ID)
	}

	// Worker-assigned request id registered at dispatch time.
	if err := s.AddCorrelation(ctx, "wf-req-9", job.ID); err != nil {
		t.Fatalf("add correlation: %v", err)
	}
	got, err = s.FindByCorrelation(ctx, "wf-req-9")
	if err != nil {
		t.Fatalf("find by worker id: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("wrong job: %s", got.ID)
	}

	if _, err := s.FindByCorrelation(ctx, "unknown"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForceStatusDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusProcessing, nil); err != nil {
		t.Fatalf("to processing: %v", err)
	}

	forced, err := s.ForceStatus(ctx, job.ID, model.JobStatusDeleted)
	if err != nil {
		t.Fatalf("force status: %v", err)
	}
	if forced.Status != model.JobStatusDeleted {
		t.Fatalf("expected deleted, got %s", forced.Status)
	}

	// Deleted jobs are unreachable by correlation: no resurrection.
	if _, err := s.FindByCorrelation(ctx, "k1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// And hidden from the group read path.
	jobs, err := s.GetByGroup(ctx, "t1")
	if err != nil {
		t.Fatalf("get by group: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("deleted job still visible: %+v", jobs)
	}

	// A deleted job cannot change state again.
	if _, err := s.ForceStatus(ctx, job.ID, model.JobStatusQueued); err != ErrStaleTransition {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
}

func TestForceStatusOverridesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The normal path refuses to leave a terminal state; force works.
	forced, err := s.ForceStatus(ctx, job.ID, model.JobStatusDeleted)
	if err != nil {
		t.Fatalf("force status: %v", err)
	}
	if forced.Status != model.JobStatusDeleted {
		t.Fatalf("expected deleted, got %s", forced.Status)
	}
}

func TestForceStatusPreservesPayloadVerbatim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty arrays and large integers do not survive a decode/encode
	// round trip in loosely-typed codecs; the payload is write-once and
	// must come back byte-for-byte.
	payload := `{"count":12345678901234567,"items":[],"text":"hi"}`
	req := createReq("t1", "k1")
	req.Payload = json.RawMessage(payload)
	job, _, err := s.Create(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.ForceStatus(ctx, job.ID, model.JobStatusCancelled); err != nil {
		t.Fatalf("force status: %v", err)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if string(got.Payload) != payload {
		t.Fatalf("payload mutated by force-status:\n got %s\nwant %s", got.Payload, payload)
	}
}

func TestListStuck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _, err := s.Create(ctx, createReq("t1", "k1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Transition(ctx, job.ID,
		[]model.JobStatus{model.JobStatusQueued}, model.JobStatusProcessing, nil); err != nil {
		t.Fatalf("to processing: %v", err)
	}

	stuck, err := s.ListStuck(ctx, time.Now().Add(time.Minute).Unix(), 10)
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != job.ID {
		t.Fatalf("unexpected stuck set: %+v", stuck)
	}

	// Nothing is stuck when the cutoff predates the flip.
	stuck, err = s.ListStuck(ctx, time.Now().Add(-time.Hour).Unix(), 10)
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 0 {
		t.Fatalf("expected empty, got %+v", stuck)
	}
}
