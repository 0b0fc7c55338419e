package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

func newTestQueue(t *testing.T, maxWorkers, maxQueueSize int) *queue {
	t.Helper()
	q := NewQueue(logger.NewNop(), maxWorkers, maxQueueSize).(*queue)
	q.Start()
	t.Cleanup(q.Stop)
	return q
}

func recvOrTimeout[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

// blockQueue submits a job that occupies the single worker until the
// returned release func is called.
func blockQueue(t *testing.T, q *queue) (jobID string, release func()) {
	t.Helper()
	gate := make(chan struct{})
	started := make(chan struct{})
	id, err := q.Submit(JobRequest{
		Name:     "blocker",
		Priority: PriorityNormal,
		Fn: func(ctx context.Context, _ ProgressFunc) (any, error) {
			close(started)
			<-gate
			return "blocked", nil
		},
	})
	if err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	recvOrTimeout(t, started, "blocker start")
	return id, func() { close(gate) }
}

func TestQueuePriorityOrderFIFOWithinLevel(t *testing.T) {
	q := newTestQueue(t, 1, 20)
	_, release := blockQueue(t, q)

	var mu sync.Mutex
	var order []string
	done := make(chan string, 4)
	submit := func(name string, p Priority) {
		_, err := q.Submit(JobRequest{
			Name:     name,
			Priority: p,
			Fn: func(ctx context.Context, _ ProgressFunc) (any, error) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return name, nil
			},
			Completion: func(jobID string, result any, errMsg string) { done <- name },
		})
		if err != nil {
			t.Fatalf("submit %s: %v", name, err)
		}
	}

	submit("low", PriorityLow)
	submit("first-normal", PriorityNormal)
	submit("urgent", PriorityUrgent)
	submit("second-normal", PriorityNormal)

	release()
	for i := 0; i < 4; i++ {
		recvOrTimeout(t, done, "job completion")
	}

	mu.Lock()
	got := strings.Join(order, ",")
	mu.Unlock()
	want := "urgent,first-normal,second-normal,low"
	if got != want {
		t.Fatalf("execution order = %s, want %s", got, want)
	}
}

func TestQueueSubmitFullReturnsQueueFull(t *testing.T) {
	q := newTestQueue(t, 1, 2)
	_, release := blockQueue(t, q)
	defer release()

	noop := func(ctx context.Context, _ ProgressFunc) (any, error) { return nil, nil }
	for i := 0; i < 2; i++ {
		if _, err := q.Submit(JobRequest{Name: "fill", Priority: PriorityNormal, Fn: noop}); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}

	_, err := q.Submit(JobRequest{Name: "overflow", Priority: PriorityNormal, Fn: noop})
	if !apperrors.IsKind(err, apperrors.KindQueueFull) {
		t.Fatalf("overflow error = %v, want QUEUE_FULL", err)
	}
	if !apperrors.Retryable(err) {
		t.Fatalf("QUEUE_FULL should be retryable")
	}

	st := q.QueueStatus()
	if st.QueueSize != 2 || st.Running != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestQueueCancelPendingOnly(t *testing.T) {
	q := newTestQueue(t, 1, 10)
	blockerID, release := blockQueue(t, q)

	ran := make(chan struct{}, 1)
	cancelled := make(chan string, 1)
	victimID, err := q.Submit(JobRequest{
		Name:     "victim",
		Priority: PriorityNormal,
		Fn: func(ctx context.Context, _ ProgressFunc) (any, error) {
			ran <- struct{}{}
			return nil, nil
		},
		Completion: func(jobID string, result any, errMsg string) { cancelled <- errMsg },
	})
	if err != nil {
		t.Fatalf("submit victim: %v", err)
	}

	if q.Cancel(blockerID) {
		t.Fatalf("cancelled a running job")
	}
	if !q.Cancel(victimID) {
		t.Fatalf("failed to cancel pending job")
	}
	if q.Cancel(victimID) {
		t.Fatalf("cancelled the same job twice")
	}
	if q.Cancel("no-such-job") {
		t.Fatalf("cancelled unknown job")
	}
	if got := q.Status(victimID); got != StatusCancelled {
		t.Fatalf("victim status = %s", got)
	}
	if msg := recvOrTimeout(t, cancelled, "cancel completion"); msg != "cancelled" {
		t.Fatalf("completion errMsg = %q", msg)
	}

	// Drain: a sentinel completing proves the dispatcher skipped the
	// cancelled entry instead of running it.
	sentinel := make(chan string, 1)
	if _, err := q.Submit(JobRequest{
		Name:     "sentinel",
		Priority: PriorityLow,
		Fn:       func(ctx context.Context, _ ProgressFunc) (any, error) { return nil, nil },
		Completion: func(jobID string, result any, errMsg string) {
			sentinel <- jobID
		},
	}); err != nil {
		t.Fatalf("submit sentinel: %v", err)
	}
	release()
	recvOrTimeout(t, sentinel, "sentinel completion")

	select {
	case <-ran:
		t.Fatalf("cancelled job executed")
	default:
	}
	if got := q.QueueStatus().Counters.Cancelled; got != 1 {
		t.Fatalf("cancelled counter = %d", got)
	}
}

func TestQueueWorkerPanicMarksFailed(t *testing.T) {
	q := newTestQueue(t, 2, 10)

	done := make(chan string, 1)
	id, err := q.Submit(JobRequest{
		Name:     "explode",
		Priority: PriorityHigh,
		Fn: func(ctx context.Context, _ ProgressFunc) (any, error) {
			panic("scene buffer corrupted")
		},
		Completion: func(jobID string, result any, errMsg string) { done <- errMsg },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	errMsg := recvOrTimeout(t, done, "panic completion")
	if !strings.Contains(errMsg, "scene buffer corrupted") {
		t.Fatalf("completion errMsg = %q", errMsg)
	}
	if got := q.Status(id); got != StatusFailed {
		t.Fatalf("status = %s", got)
	}
	res, rerr := q.Result(id)
	if rerr != nil {
		t.Fatalf("Result: %v", rerr)
	}
	if !strings.Contains(res.Error, "job panic") {
		t.Fatalf("result error = %q", res.Error)
	}
	if got := q.QueueStatus().Counters.Failed; got != 1 {
		t.Fatalf("failed counter = %d", got)
	}

	// The pool survives the panic.
	ok := make(chan string, 1)
	if _, err := q.Submit(JobRequest{
		Name:       "after",
		Priority:   PriorityNormal,
		Fn:         func(ctx context.Context, _ ProgressFunc) (any, error) { return "fine", nil },
		Completion: func(jobID string, result any, errMsg string) { ok <- errMsg },
	}); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	if msg := recvOrTimeout(t, ok, "post-panic completion"); msg != "" {
		t.Fatalf("post-panic job failed: %q", msg)
	}
}

func TestQueueResultSnapshot(t *testing.T) {
	q := newTestQueue(t, 1, 10)

	done := make(chan struct{})
	id, err := q.Submit(JobRequest{
		Name:      "analyze",
		SessionID: "s1",
		Priority:  PriorityNormal,
		Fn: func(ctx context.Context, _ ProgressFunc) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]string{"genre": "vlog"}, nil
		},
		Completion: func(string, any, string) { close(done) },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	recvOrTimeout(t, done, "completion")

	res, err := q.Result(id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Status != StatusCompleted || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	if res.ExecutionTimeSeconds <= 0 {
		t.Fatalf("execution time = %v", res.ExecutionTimeSeconds)
	}
	if res.CreatedAt.IsZero() {
		t.Fatalf("created_at unset")
	}
	got, ok := res.Result.(map[string]string)
	if !ok || got["genre"] != "vlog" {
		t.Fatalf("payload = %#v", res.Result)
	}

	if _, err := q.Result("unknown"); err != apperrors.ErrNotFound {
		t.Fatalf("unknown result err = %v", err)
	}
	if got := q.Status("unknown"); got != StatusNotFound {
		t.Fatalf("unknown status = %s", got)
	}
}

func TestQueueProgressCallbackPanicSwallowed(t *testing.T) {
	q := newTestQueue(t, 1, 10)

	done := make(chan string, 1)
	_, err := q.Submit(JobRequest{
		Name:     "progressive",
		Priority: PriorityNormal,
		Fn: func(ctx context.Context, progress ProgressFunc) (any, error) {
			progress("fetch", 50, "halfway")
			progress("fetch", 100, "done")
			return nil, nil
		},
		Progress:   func(stage string, percent float64, message string) { panic("sink gone") },
		Completion: func(jobID string, result any, errMsg string) { done <- errMsg },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg := recvOrTimeout(t, done, "completion"); msg != "" {
		t.Fatalf("job failed from callback panic: %q", msg)
	}
}

func TestQueueSessionJobs(t *testing.T) {
	q := newTestQueue(t, 1, 10)
	_, release := blockQueue(t, q)

	noop := func(ctx context.Context, _ ProgressFunc) (any, error) { return nil, nil }
	done := make(chan struct{}, 2)
	for _, session := range []string{"s1", "s2"} {
		if _, err := q.Submit(JobRequest{
			Name:       "work-" + session,
			SessionID:  session,
			Priority:   PriorityNormal,
			Fn:         noop,
			Completion: func(string, any, string) { done <- struct{}{} },
		}); err != nil {
			t.Fatalf("submit %s: %v", session, err)
		}
	}

	if got := len(q.SessionJobs("s1")); got != 1 {
		t.Fatalf("s1 in-flight = %d", got)
	}
	if got := len(q.SessionJobs("s3")); got != 0 {
		t.Fatalf("s3 in-flight = %d", got)
	}

	release()
	recvOrTimeout(t, done, "s1 completion")
	recvOrTimeout(t, done, "s2 completion")

	if got := len(q.SessionJobs("s1")); got != 0 {
		t.Fatalf("s1 in-flight after completion = %d", got)
	}
}

func TestQueueRetentionEviction(t *testing.T) {
	q := NewQueue(logger.NewNop(), 1, 10).(*queue)

	q.completed["old"] = &job{
		id:          "old",
		status:      StatusCompleted,
		completedAt: time.Now().Add(-2 * time.Hour),
	}
	q.completed["fresh"] = &job{
		id:          "fresh",
		status:      StatusCompleted,
		completedAt: time.Now().Add(-5 * time.Minute),
	}

	q.evictExpired()

	if got := q.Status("old"); got != StatusNotFound {
		t.Fatalf("old status = %s, want eviction", got)
	}
	if got := q.Status("fresh"); got != StatusCompleted {
		t.Fatalf("fresh status = %s", got)
	}
}

func TestQueueStopRefusesSubmit(t *testing.T) {
	q := NewQueue(logger.NewNop(), 1, 10).(*queue)
	q.Start()
	q.Stop()

	_, err := q.Submit(JobRequest{
		Name:     "late",
		Priority: PriorityNormal,
		Fn:       func(ctx context.Context, _ ProgressFunc) (any, error) { return nil, nil },
	})
	if err == nil || !strings.Contains(err.Error(), "stopped") {
		t.Fatalf("submit after stop = %v", err)
	}
}
