// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mcuplan/errcode"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// entry is one registered job. running is shared by scheduled and manual
// runs so a job never overlaps itself.
type entry struct {
	job     Job
	running atomic.Bool
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func New(log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{l})),
		log:     l,
		entries: map[string]*entry{},
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job with a standard cron spec or a descriptor such as
// "@every 10m" or "@hourly". Job names are unique.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	const op = "scheduler.add"
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name()]; dup {
		return errcode.Wrap(errcode.InvalidParams, op, "duplicate job "+job.Name(), nil)
	}
	e := &entry{job: job}
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.run(e) }); err != nil {
		return errcode.Wrap(errcode.InvalidParams, op, schedule, err)
	}
	s.entries[job.Name()] = e
	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a registered job immediately, outside its schedule. It
// fails with errcode.Busy while the job is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return errcode.Wrap(errcode.NotFound, "scheduler.run", name, nil)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(e)
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) run(e *entry) error {
	name := e.job.Name()
	if !e.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("job", name).Msg("Job still running, skipped")
		return errcode.Wrap(errcode.Busy, "scheduler.run", name, nil)
	}
	defer e.running.Store(false)

	s.log.Debug().Str("job", name).Msg("Running job")
	if err := e.job.Run(); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Msg("Job completed")
	return nil
}

// cronLogger routes cron's own logging into zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
