package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Intervals нулевой интервал отключает задачу.
type Intervals map[string]time.Duration

type Scheduler struct {
	runner    *Runner
	intervals Intervals
	log       *zap.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewScheduler(runner *Runner, intervals Intervals, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		intervals: intervals,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start запускает по горутине на каждую задачу с ненулевым интервалом
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting job scheduler")
	for _, name := range Names {
		every := s.intervals[name]
		if every <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, name, every)
	}
}

// Stop останавливает планировщик и ждёт завершения текущих запусков
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("stopping job scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.runner.Run(ctx, name); err != nil {
				s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		case <-s.stopCh:
			s.log.Info("job stopped", zap.String("job", name))
			return
		case <-ctx.Done():
			s.log.Info("job cancelled", zap.String("job", name))
			return
		}
	}
}

// RunOnceNow выполняет все задачи немедленно
func (s *Scheduler) RunOnceNow(ctx context.Context) error {
	return s.runner.RunAll(ctx)
}
