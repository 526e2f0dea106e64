// Package jobs runs ingestion work detached from the request path.
package jobs

import (
	"context"
	"fmt"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
)

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue is a bounded in-memory task queue with a fixed worker pool. Submit
// never blocks the caller; task errors are logged and surface only through
// whatever state the task itself persists.
type Queue struct {
	log     *logger.Logger
	tasks   chan Task
	workers int
}

func NewQueue(baseLog *logger.Logger, workers, buffer int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 64
	}
	return &Queue{
		log:     baseLog.With("component", "JobQueue"),
		tasks:   make(chan Task, buffer),
		workers: workers,
	}
}

func (q *Queue) Start(ctx context.Context) {
	q.log.Info("Starting job workers", "workers", q.workers, "buffer", cap(q.tasks))
	for i := 0; i < q.workers; i++ {
		workerID := i + 1
		go q.runLoop(ctx, workerID)
	}
}

// Submit enqueues a task. A full queue is reported to the caller instead of
// blocking the triggering request.
func (q *Queue) Submit(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("job queue full, rejecting task %q", task.Name)
	}
}

func (q *Queue) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			q.log.Info("Job worker stopped", "worker_id", workerID)
			return
		case task := <-q.tasks:
			q.runOne(ctx, workerID, task)
		}
	}
}

func (q *Queue) runOne(ctx context.Context, workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Job panic",
				"worker_id", workerID,
				"task", task.Name,
				"panic", r,
			)
		}
	}()
	if err := task.Run(ctx); err != nil {
		// Tasks persist their own failure state; this is a safety net.
		q.log.Warn("Job failed", "worker_id", workerID, "task", task.Name, "error", err)
	}
}
