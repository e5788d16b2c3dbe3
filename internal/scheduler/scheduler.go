// Package scheduler runs periodic cache maintenance: activity-based
// warming on each connection's configured cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/manager"
)

// Scheduler drives scheduled warming for every connection that configures
// one.
type Scheduler struct {
	cron    *cron.Cron
	manager *manager.Manager
	logger  logger.Logger
}

// SchedulerOpt defines an option that can be used to change the behavior of
// a Scheduler instance.
type SchedulerOpt func(*Scheduler)

// WithLogger sets the logger for the scheduler.
func WithLogger(l logger.Logger) SchedulerOpt {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler registers every connection's warm schedule. Connections
// without a schedule are skipped. Nothing runs until Start.
func NewScheduler(m *manager.Manager, opts ...SchedulerOpt) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		manager: m,
		logger:  logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, name := range m.Connections() {
		conn, err := m.GetConnection(name)
		if err != nil {
			return nil, err
		}

		schedule := conn.WarmSchedule()
		if schedule == "" {
			continue
		}

		if _, err := s.cron.AddFunc(schedule, s.warmJob(conn)); err != nil {
			return nil, fmt.Errorf("invalid warm schedule %q for connection %q: %w", schedule, name, err)
		}
	}

	return s, nil
}

func (s *Scheduler) warmJob(conn *manager.Connection) func() {
	return func() {
		warmed, err := conn.WarmFromActivity(context.Background(), 0)
		if err != nil {
			s.logger.Warn("scheduled cache warming failed",
				zap.Error(err),
				zap.String("connection", conn.Name()),
				zap.Int("warmed", warmed),
			)
			return
		}

		s.logger.Info("scheduled cache warming completed",
			zap.String("connection", conn.Name()),
			zap.Int("warmed", warmed),
		)
	}
}

// Start begins running registered schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts future runs and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
