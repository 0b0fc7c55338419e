package jobs

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusNotFound  Status = "NOT_FOUND"
)

// completedRetention is how long finished jobs stay queryable before the
// sweeper evicts them.
const (
	completedRetention = time.Hour
	sweepInterval      = time.Minute
)

// ProgressFunc receives stage-level progress from a running job. It must
// not block; the queue already shields workers from callback panics.
type ProgressFunc func(stage string, percent float64, message string)

// JobFunc is the unit of work. The context is the queue's run context and
// is cancelled on Stop.
type JobFunc func(ctx context.Context, progress ProgressFunc) (any, error)

// CompletionFunc is invoked exactly once per finished job with either a
// result or an error string, never both.
type CompletionFunc func(jobID string, result any, errMsg string)

type JobRequest struct {
	Name       string
	SessionID  string
	Priority   Priority
	Fn         JobFunc
	Progress   ProgressFunc
	Completion CompletionFunc
}

// JobResult is the queryable outcome snapshot of one job.
type JobResult struct {
	JobID                string    `json:"job_id"`
	Name                 string    `json:"name"`
	SessionID            string    `json:"session_id"`
	Status               Status    `json:"status"`
	Result               any       `json:"result,omitempty"`
	Error                string    `json:"error,omitempty"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
	CreatedAt            time.Time `json:"created_at"`
}

type Counters struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

type QueueStatus struct {
	QueueSize    int      `json:"queue_size"`
	MaxQueueSize int      `json:"max_queue_size"`
	Running      int      `json:"running"`
	MaxWorkers   int      `json:"max_workers"`
	Counters     Counters `json:"counters"`
}

// Queue runs submitted work on a fixed pool in strict priority order, FIFO
// within one priority. Finished jobs stay queryable for about an hour.
type Queue interface {
	Start()
	Stop()
	Submit(req JobRequest) (string, error)
	Status(jobID string) Status
	Result(jobID string) (*JobResult, error)
	Cancel(jobID string) bool
	QueueStatus() QueueStatus
	SessionJobs(sessionID string) []*JobResult
}

type job struct {
	id          string
	name        string
	sessionID   string
	priority    Priority
	seq         uint64
	status      Status
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	result      any
	err         string

	fn         JobFunc
	progress   ProgressFunc
	completion CompletionFunc
}

// jobHeap orders by priority descending, then submission order ascending.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type queue struct {
	log          *logger.Logger
	maxWorkers   int
	maxQueueSize int
	retention    time.Duration
	sweepEvery   time.Duration
	now          func() time.Time

	mu        sync.Mutex
	backlog   jobHeap
	jobs      map[string]*job
	completed map[string]*job
	counters  Counters
	running   int
	seq       uint64
	stopped   bool

	ctx      context.Context
	cancel   context.CancelFunc
	wake     chan struct{}
	slots    chan struct{}
	workCh   chan *job
	dispDone chan struct{}
	workers  sync.WaitGroup
	sweeper  sync.WaitGroup
}

func NewQueue(log *logger.Logger, maxWorkers, maxQueueSize int) Queue {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &queue{
		log:          log.With("service", "JobQueue"),
		maxWorkers:   maxWorkers,
		maxQueueSize: maxQueueSize,
		retention:    completedRetention,
		sweepEvery:   sweepInterval,
		now:          time.Now,
		jobs:         map[string]*job{},
		completed:    map[string]*job{},
		ctx:          ctx,
		cancel:       cancel,
		wake:         make(chan struct{}, 1),
		slots:        make(chan struct{}, maxWorkers),
		workCh:       make(chan *job),
		dispDone:     make(chan struct{}),
	}
}

func (q *queue) Start() {
	for i := 0; i < q.maxWorkers; i++ {
		q.slots <- struct{}{}
		q.workers.Add(1)
		go q.worker()
	}
	go q.dispatch()
	q.sweeper.Add(1)
	go q.sweep()
	q.log.Info("Job queue started", "max_workers", q.maxWorkers, "max_queue_size", q.maxQueueSize)
}

// Stop refuses further submissions, lets running jobs finish, and waits for
// the pool to drain. Pending jobs stay PENDING; the run context is
// cancelled so long jobs can bail out early.
func (q *queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	pending := q.pendingLocked()
	q.mu.Unlock()

	q.cancel()
	<-q.dispDone
	close(q.workCh)
	q.workers.Wait()
	q.sweeper.Wait()
	q.log.Info("Job queue stopped", "pending_abandoned", pending)
}

func (q *queue) Submit(req JobRequest) (string, error) {
	if req.Fn == nil {
		return "", fmt.Errorf("submit %q: nil job func", req.Name)
	}
	if req.Priority < PriorityLow || req.Priority > PriorityUrgent {
		req.Priority = PriorityNormal
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", fmt.Errorf("submit %q: queue stopped", req.Name)
	}
	if q.pendingLocked() >= q.maxQueueSize {
		q.mu.Unlock()
		return "", apperrors.Ef(apperrors.KindQueueFull, "queue full: %d pending jobs", q.maxQueueSize)
	}
	q.seq++
	j := &job{
		id:         uuid.New().String(),
		name:       req.Name,
		sessionID:  req.SessionID,
		priority:   req.Priority,
		seq:        q.seq,
		status:     StatusPending,
		createdAt:  q.now(),
		fn:         req.Fn,
		progress:   req.Progress,
		completion: req.Completion,
	}
	heap.Push(&q.backlog, j)
	q.jobs[j.id] = j
	q.counters.Submitted++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.log.Debug("Job submitted", "job_id", j.id, "name", j.name, "priority", int(j.priority))
	return j.id, nil
}

func (q *queue) Status(jobID string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok {
		return j.status
	}
	if j, ok := q.completed[jobID]; ok {
		return j.status
	}
	return StatusNotFound
}

func (q *queue) Result(jobID string) (*JobResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[jobID]; ok {
		return j.snapshotLocked(q.now()), nil
	}
	if j, ok := q.completed[jobID]; ok {
		return j.snapshotLocked(q.now()), nil
	}
	return nil, apperrors.ErrNotFound
}

// Cancel flips a PENDING job to CANCELLED. Running jobs cannot be
// cancelled; they finish and report normally.
func (q *queue) Cancel(jobID string) bool {
	q.mu.Lock()
	j, ok := q.jobs[jobID]
	if !ok || j.status != StatusPending {
		q.mu.Unlock()
		return false
	}
	j.status = StatusCancelled
	j.completedAt = q.now()
	delete(q.jobs, jobID)
	q.completed[jobID] = j
	q.counters.Cancelled++
	completion := j.completion
	q.mu.Unlock()

	q.log.Info("Job cancelled", "job_id", jobID, "name", j.name)
	if completion != nil {
		q.safeCompletion(completion, jobID, nil, "cancelled")
	}
	return true
}

func (q *queue) QueueStatus() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		QueueSize:    q.pendingLocked(),
		MaxQueueSize: q.maxQueueSize,
		Running:      q.running,
		MaxWorkers:   q.maxWorkers,
		Counters:     q.counters,
	}
}

// SessionJobs lists a session's jobs still in flight, pending first in
// priority order, then running.
func (q *queue) SessionJobs(sessionID string) []*JobResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*JobResult
	for _, j := range q.jobs {
		if j.sessionID == sessionID {
			out = append(out, j.snapshotLocked(q.now()))
		}
	}
	return out
}

func (q *queue) pendingLocked() int {
	n := 0
	for _, j := range q.jobs {
		if j.status == StatusPending {
			n++
		}
	}
	return n
}

func (j *job) snapshotLocked(now time.Time) *JobResult {
	out := &JobResult{
		JobID:     j.id,
		Name:      j.name,
		SessionID: j.sessionID,
		Status:    j.status,
		Result:    j.result,
		Error:     j.err,
		CreatedAt: j.createdAt,
	}
	switch {
	case !j.completedAt.IsZero() && !j.startedAt.IsZero():
		out.ExecutionTimeSeconds = j.completedAt.Sub(j.startedAt).Seconds()
	case !j.startedAt.IsZero():
		out.ExecutionTimeSeconds = now.Sub(j.startedAt).Seconds()
	}
	return out
}

// dispatch hands one job at a time to the pool. A worker slot is acquired
// before popping, so the backlog keeps re-sorting by priority until a
// worker is actually free.
func (q *queue) dispatch() {
	defer close(q.dispDone)
	for {
		select {
		case <-q.slots:
		case <-q.ctx.Done():
			return
		}

		j := q.nextPending()
		if j == nil {
			return
		}

		select {
		case q.workCh <- j:
		case <-q.ctx.Done():
			q.mu.Lock()
			heap.Push(&q.backlog, j)
			q.mu.Unlock()
			return
		}
	}
}

// nextPending blocks until a runnable job is available. Entries cancelled
// while queued are dropped here; the cancel path already finalized them.
func (q *queue) nextPending() *job {
	q.mu.Lock()
	for {
		for q.backlog.Len() > 0 {
			j := heap.Pop(&q.backlog).(*job)
			if j.status == StatusPending {
				q.mu.Unlock()
				return j
			}
		}
		q.mu.Unlock()
		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return nil
		}
		q.mu.Lock()
	}
}

func (q *queue) worker() {
	defer q.workers.Done()
	for j := range q.workCh {
		q.run(j)
		q.slots <- struct{}{}
	}
}

func (q *queue) run(j *job) {
	q.mu.Lock()
	if j.status != StatusPending {
		q.mu.Unlock()
		return
	}
	j.status = StatusRunning
	j.startedAt = q.now()
	q.running++
	q.mu.Unlock()

	result, err := q.invoke(j)
	q.finalize(j, result, err)
}

// invoke shields the pool from panicking job bodies.
func (q *queue) invoke(j *job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Job panicked", "job_id", j.id, "name", j.name, "panic", r)
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return j.fn(q.ctx, q.guardProgress(j))
}

func (q *queue) guardProgress(j *job) ProgressFunc {
	return func(stage string, percent float64, message string) {
		if j.progress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				q.log.Warn("Progress callback panicked", "job_id", j.id, "panic", r)
			}
		}()
		j.progress(stage, percent, message)
	}
}

func (q *queue) finalize(j *job, result any, err error) {
	q.mu.Lock()
	j.completedAt = q.now()
	j.result = result
	if err != nil {
		j.status = StatusFailed
		j.err = err.Error()
		q.counters.Failed++
	} else {
		j.status = StatusCompleted
		q.counters.Completed++
	}
	q.running--
	delete(q.jobs, j.id)
	q.completed[j.id] = j
	completion := j.completion
	errMsg := j.err
	q.mu.Unlock()

	if err != nil {
		q.log.Warn("Job failed", "job_id", j.id, "name", j.name, "error", err)
	} else {
		q.log.Debug("Job completed", "job_id", j.id, "name", j.name,
			"execution_seconds", j.completedAt.Sub(j.startedAt).Seconds())
	}
	if completion != nil {
		q.safeCompletion(completion, j.id, result, errMsg)
	}
}

func (q *queue) safeCompletion(fn CompletionFunc, jobID string, result any, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Warn("Completion callback panicked", "job_id", jobID, "panic", r)
		}
	}()
	fn(jobID, result, errMsg)
}

func (q *queue) sweep() {
	defer q.sweeper.Done()
	ticker := time.NewTicker(q.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.evictExpired()
		}
	}
}

func (q *queue) evictExpired() {
	q.mu.Lock()
	cutoff := q.now().Add(-q.retention)
	evicted := 0
	for id, j := range q.completed {
		if j.completedAt.Before(cutoff) {
			delete(q.completed, id)
			evicted++
		}
	}
	q.mu.Unlock()
	if evicted > 0 {
		q.log.Debug("Evicted finished jobs", "count", evicted)
	}
}
