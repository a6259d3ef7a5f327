package jobs

import (
	"context"
	"sync"
	"time"

	"cadence/internal/queue"

	"go.uber.org/zap"
)

// Schedule fires a background job once a day during Hour.
type Schedule struct {
	Job  string
	Hour int
}

// Scheduler enqueues daily background jobs. Each run uses a job id derived
// from the job name and date, so several processes running a scheduler
// enqueue it once.
type Scheduler struct {
	q         *queue.Queue
	schedules []Schedule
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	lastRun map[string]string
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler runs the daily report at 01:00 and booking reminders at
// reminderHour.
func NewScheduler(q *queue.Queue, reminderHour int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		q: q,
		schedules: []Schedule{
			{Job: JobDailyReport, Hour: 1},
			{Job: JobBookingReminders, Hour: reminderHour},
		},
		interval: time.Minute,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
		lastRun:  make(map[string]string),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	s.RunDue(ctx, s.now())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunDue(ctx, s.now())
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunDue enqueues every schedule whose hour is now and that has not run
// today. It returns the ids of the jobs it enqueued.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []string {
	day := now.Format(time.DateOnly)
	var ids []string
	for _, sc := range s.schedules {
		if now.Hour() != sc.Hour {
			continue
		}
		s.mu.Lock()
		done := s.lastRun[sc.Job] == day
		s.mu.Unlock()
		if done {
			continue
		}
		job, err := s.q.AddBackgroundJob(ctx, sc.Job, DayJob{Date: startOfDay(now)},
			queue.WithJobID(sc.Job+":"+day))
		if err != nil {
			s.logger.Error("schedule job", zap.String("job", sc.Job), zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.lastRun[sc.Job] = day
		s.mu.Unlock()
		s.logger.Info("scheduled job", zap.String("job", sc.Job), zap.String("job_id", job.ID))
		ids = append(ids, job.ID)
	}
	return ids
}
