// Package scheduler runs the periodic maintenance passes that keep the
// recurring-game calendar honest: nightly gap detection, instance
// reconciliation, and weekly compliance snapshots.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	logger  *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make([]*Task, 0),
		logger: logger,
	}
}

// AddTask adds a task to the scheduler
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	})
}

// Start starts the scheduler. Each task runs once immediately, then on its
// interval until the context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		go s.runTask(ctx, task)
	}

	s.logger.WithField("tasks", len(s.tasks)).Info("scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	log := s.logger.WithField("task", task.Name)

	log.Info("running task immediately on startup")
	if err := task.Fn(ctx); err != nil {
		log.WithError(err).Error("task failed")
	}

	for {
		select {
		case <-ticker.C:
			log.Info("running scheduled task")
			if err := task.Fn(ctx); err != nil {
				log.WithError(err).Error("task failed")
			}
		case <-ctx.Done():
			log.Info("task stopped")
			return
		}
	}
}
