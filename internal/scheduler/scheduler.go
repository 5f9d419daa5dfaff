package scheduler

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInitialized  = errors.New("scheduler not initialized")
	ErrEmptyJobName    = errors.New("job name is required")
	ErrInvalidInterval = errors.New("job interval must be positive")
	ErrStopped         = errors.New("scheduler stopped")
)

// Service wraps a gocron scheduler. It is created by the server and passed to
// the components that need repeating work.
type Service struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	stopped   bool
	stopOnce  sync.Once
	stopErr   error
}

// New creates a scheduler whose job panics are logged rather than crashing
// the process.
func New(opts ...gocron.SchedulerOption) (*Service, error) {
	opts = append([]gocron.SchedulerOption{
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("Scheduler job panicked")
				}),
			),
		),
	}, opts...)

	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Scheduler initialized")
	return &Service{scheduler: sched}, nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	if s == nil {
		log.Error().Msg("Scheduler start requested before initialization")
		return
	}
	log.Info().Msg("Scheduler starting")
	s.scheduler.Start()
}

// Stop shuts down the scheduler and prevents new jobs from running.
func (s *Service) Stop() error {
	if s == nil {
		return ErrNotInitialized
	}
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		log.Info().Msg("Scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// AddIntervalJob registers task to run every interval. The job runs in
// singleton mode: a tick that arrives while the previous run is still going
// is skipped.
func (s *Service) AddIntervalJob(name string, every time.Duration, task func()) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, ErrNotInitialized
	}
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, ErrEmptyJobName
	}
	if every <= 0 {
		return uuid.Nil, ErrInvalidInterval
	}
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return uuid.Nil, ErrStopped
	}

	jobLogger := log.With().Str("job_name", name).Dur("every", every).Logger()

	wrappedTask := func() {
		jobLogger.Debug().Msg("Scheduler job started")
		task()
		jobLogger.Debug().Msg("Scheduler job completed")
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(wrappedTask),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to register scheduler job")
		return uuid.Nil, err
	}
	jobLogger.Info().Str("job_id", job.ID().String()).Msg("Scheduler job registered")
	return job.ID(), nil
}

// RemoveJob cancels a job. Future ticks will not run; a run already in
// progress completes.
func (s *Service) RemoveJob(id uuid.UUID) error {
	if s == nil {
		return ErrNotInitialized
	}
	if err := s.scheduler.RemoveJob(id); err != nil {
		return err
	}
	log.Info().Str("job_id", id.String()).Msg("Scheduler job removed")
	return nil
}

// JobCount reports registered jobs.
func (s *Service) JobCount() int {
	if s == nil {
		return 0
	}
	return len(s.scheduler.Jobs())
}
