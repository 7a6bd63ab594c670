package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is a named periodic task. Interval zero disables it.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs the periodic maintenance jobs: dataset change polling and session pruning.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		jobs:      jobs,
	}
}

// Start registers the enabled jobs and starts the scheduler in the background.
// It returns the number of jobs scheduled.
func (s *Scheduler) Start() (int, error) {
	n := 0
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			slog.Info("scheduler: job disabled", "job", j.Name)
			continue
		}
		if j.Run == nil {
			return n, errors.New("scheduler: job " + j.Name + " has no Run func")
		}
		job := j
		_, err := s.scheduler.Every(job.Interval).SingletonMode().Do(func() {
			runJob(job)
		})
		if err != nil {
			return n, err
		}
		n++
		slog.Info("scheduler: job scheduled", "job", job.Name, "interval", job.Interval.String())
	}
	if n > 0 {
		s.scheduler.StartAsync()
	}
	return n, nil
}

func runJob(j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		slog.Error("scheduler: job failed", "job", j.Name, "error", err)
		return
	}
	slog.Debug("scheduler: job completed", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
