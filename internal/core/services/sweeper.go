package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type SweepIntervals struct {
	Holds    time.Duration
	Queues   time.Duration
	Waitlist time.Duration
	Tick     time.Duration
}

// Sweeper runs the background jobs that reclaim abandoned inventory and
// keep queues moving. Each job has its own ticker so a slow one never
// delays the others.
type Sweeper struct {
	holds     *HoldManager
	admission *AdmissionService
	waitlist  *WaitlistService
	every     SweepIntervals
	log       *zap.SugaredLogger
}

func NewSweeper(holds *HoldManager, admission *AdmissionService, waitlist *WaitlistService, every SweepIntervals, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		holds:     holds,
		admission: admission,
		waitlist:  waitlist,
		every:     every,
		log:       log,
	}
}

// Run blocks until ctx is done and every job has returned.
func (s *Sweeper) Run(ctx context.Context) {
	jobs := []struct {
		name  string
		every time.Duration
		run   func(ctx context.Context)
	}{
		{"holds", s.every.Holds, func(ctx context.Context) { s.SweepHolds(ctx) }},
		{"queues", s.every.Queues, func(ctx context.Context) { s.SweepQueues(ctx) }},
		{"waitlist", s.every.Waitlist, func(ctx context.Context) { s.SweepWaitlist(ctx) }},
		{"queue-tick", s.every.Tick, func(ctx context.Context) { s.TickQueues(ctx) }},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.every <= 0 {
			s.log.Warnw("background job disabled", "job", job.name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, job.name, job.every, job.run)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, every time.Duration, run func(ctx context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.log.Infow("background job started", "job", name, "every", every)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("background job stopped", "job", name)
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Sweeper) SweepHolds(ctx context.Context) SweepResult {
	res, err := s.holds.ExpireSweep(ctx)
	if err != nil {
		s.log.Errorw("hold sweep failed", "error", err)
	}
	return res
}

func (s *Sweeper) SweepQueues(ctx context.Context) QueueSweepResult {
	res, err := s.admission.ExpireSweep(ctx)
	if err != nil {
		s.log.Errorw("queue sweep failed", "error", err)
	}
	return res
}

func (s *Sweeper) TickQueues(ctx context.Context) TickResult {
	res, err := s.admission.Tick(ctx)
	if err != nil {
		s.log.Errorw("queue tick failed", "error", err)
	}
	return res
}

// SweepWaitlist expires stale offers and re-offers what they left
// unclaimed, bounded by current availability.
func (s *Sweeper) SweepWaitlist(ctx context.Context) (expired, reoffered int) {
	freed, err := s.waitlist.ExpireSweep(ctx)
	if err != nil {
		s.log.Errorw("waitlist sweep failed", "error", err)
		return 0, 0
	}
	for _, f := range freed {
		expired += int(f.Quantity)
	}
	return expired, s.waitlist.Reoffer(ctx, freed)
}
