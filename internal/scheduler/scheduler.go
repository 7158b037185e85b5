// Package scheduler runs periodic maintenance jobs (session archival, presence sweeps) with gocron.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is a named job with a cron schedule.
type Task struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	Handler     func(ctx context.Context) error
}

// SessionArchiver archives sessions that have no participants left.
type SessionArchiver interface {
	ArchiveEmptySessions(ctx context.Context) (int64, error)
}

// PresenceSweeper marks users with expired heartbeats offline.
type PresenceSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Service manages all scheduled tasks.
type Service struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     map[string]Task
}

// NewService creates a scheduler running in UTC.
func NewService() *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]Task),
	}
}

// MaintenanceTasks returns the archival and presence sweep jobs.
func MaintenanceTasks(archiver SessionArchiver, sweeper PresenceSweeper, archiveSchedule, sweepSchedule string) []Task {
	return []Task{
		{
			Name:        "archive_empty_sessions",
			Description: "Archive sessions without participants",
			Schedule:    archiveSchedule,
			Enabled:     archiver != nil,
			Handler: func(ctx context.Context) error {
				_, err := archiver.ArchiveEmptySessions(ctx)
				return err
			},
		},
		{
			Name:        "presence_sweep",
			Description: "Mark users with expired heartbeats offline",
			Schedule:    sweepSchedule,
			Enabled:     sweeper != nil,
			Handler: func(ctx context.Context) error {
				_, err := sweeper.Sweep(ctx)
				return err
			},
		},
	}
}

// Register schedules every enabled task. Disabled tasks are skipped.
func (s *Service) Register(tasks ...Task) error {
	for _, task := range tasks {
		if !task.Enabled {
			log.Printf("INFO: [Scheduler] Skipping disabled task: %s", task.Name)
			continue
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}
	log.Printf("INFO: [Scheduler] Registered %d scheduled tasks", len(s.tasks))
	return nil
}

// AddTask schedules a single task.
func (s *Service) AddTask(task Task) error {
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task with name '%s' already exists", task.Name)
	}

	job, err := s.scheduler.Cron(task.Schedule).Do(func() {
		if err := task.Handler(s.ctx); err != nil {
			log.Printf("ERROR: [Scheduler] Task %s failed: %v", task.Name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule task %s: %w", task.Name, err)
	}
	job.Tag(task.Name)

	s.tasks[task.Name] = task
	log.Printf("INFO: [Scheduler] Registered task: %s (%s)", task.Name, task.Schedule)
	return nil
}

// RemoveTask unschedules a task by name.
func (s *Service) RemoveTask(name string) error {
	if _, exists := s.tasks[name]; !exists {
		return fmt.Errorf("task with name '%s' does not exist", name)
	}
	delete(s.tasks, name)
	return s.scheduler.RemoveByTag(name)
}

// ListTasks returns the registered tasks sorted by name.
func (s *Service) ListTasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunTaskNow runs a task immediately by name.
func (s *Service) RunTaskNow(name string) error {
	task, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}
	return task.Handler(s.ctx)
}

// Start begins running the scheduler.
func (s *Service) Start() {
	log.Println("INFO: [Scheduler] Starting scheduler service...")
	s.scheduler.StartAsync()
}

// Stop halts all scheduled jobs and cancels running handlers.
func (s *Service) Stop() {
	log.Println("INFO: [Scheduler] Stopping scheduler service...")
	s.scheduler.Stop()
	s.cancel()
}
