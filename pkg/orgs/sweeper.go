package orgs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenancy/pkg/observability"
)

// DefaultSweepSchedule runs the invitation sweep at minute 0 of every hour
const DefaultSweepSchedule = "0 * * * *"

// Sweeper periodically expires pending invitations older than a TTL
type Sweeper struct {
	invitations *Invitations
	ttl         time.Duration
	timeout     time.Duration
	cron        *cron.Cron
	logger      *logrus.Logger
	now         func() time.Time
}

// NewSweeper schedules ExpirePending on a standard five field cron schedule
func NewSweeper(invitations *Invitations, schedule string, ttl time.Duration, logger *logrus.Logger) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("invitation ttl must be positive, got %s", ttl)
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Sweeper{
		invitations: invitations,
		ttl:         ttl,
		timeout:     5 * time.Minute,
		cron:        cron.New(),
		logger:      logger,
		now:         invitations.svc.now,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule invitation sweep: %w", err)
	}
	return s, nil
}

// Start begins running the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.WithField("ttl", s.ttl.String()).Info("Invitation sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Invitation sweeper stopped")
}

// RunOnce expires stale invitations immediately
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.invitations.ExpirePending(ctx, s.now().Add(-s.ttl))
}

func (s *Sweeper) run() {
	defer observability.RecoverPanic(s.logger, "invitation sweeper")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("expired", n).Error("Invitation sweep failed")
		return
	}
	s.logger.WithField("expired", n).Debug("Invitation sweep finished")
}
