package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// AuthSweeper periodically drops authorizations that were never ticketed.
type AuthSweeper struct {
	cron      *cron.Cron
	store     repo.Sweeper
	retention time.Duration
	log       *logrus.Logger
	now       func() time.Time
}

func NewAuthSweeper(store repo.Sweeper, schedule string, retentionDays int, log *logrus.Logger) (*AuthSweeper, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("auth sweeper -> retention must be positive, got %d days", retentionDays)
	}
	s := &AuthSweeper{
		cron:      cron.New(),
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		log:       log,
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("auth sweeper -> schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *AuthSweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *AuthSweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *AuthSweeper) run() {
	if _, err := s.Sweep(context.Background()); err != nil {
		s.log.Errorf("auth sweeper -> %v", err)
	}
}

// Sweep removes uncaptured authorizations older than the retention window.
func (s *AuthSweeper) Sweep(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.retention)
	purged, err := s.store.PurgeAuthorizations(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge authorizations before %s: %w", before.Format(time.DateTime), err)
	}
	s.log.Infof("auth sweeper -> purged %d authorizations older than %s", purged, before.Format(time.DateTime))
	return purged, nil
}
