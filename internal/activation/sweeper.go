package activation

import (
	"context"
	"time"

	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweepInterval = time.Minute
	sweepLockKey  = "lock:session_sweep"
)

// Sweeper deletes expired binding sessions in the background. Expired
// sessions are already unusable; the sweep only keeps the table from
// growing without bound. When Redis is available the sweep is elected to a
// single instance, otherwise every instance runs it, which is safe because
// the delete is idempotent.
type Sweeper struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   activationdomain.Repository
	clock  clock.Clock
	locker *ratelimit.Locker
}

type SweeperParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   activationdomain.Repository
	Clock  clock.Clock
	Locker *ratelimit.Locker `optional:"true"`
}

func NewSweeper(p SweeperParam) *Sweeper {
	return &Sweeper{
		db:     p.DB,
		log:    p.Log.Named("activation.sweeper"),
		repo:   p.Repo,
		clock:  p.Clock,
		locker: p.Locker,
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, sweepInterval)
		if err != nil || !ok {
			return
		}
		defer func() {
			_ = s.locker.Release(ctx, sweepLockKey, token)
		}()
	}

	deleted, err := s.repo.DeleteExpiredSessions(ctx, s.db, s.clock.Now())
	if err != nil {
		s.log.Warn("session sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.log.Info("expired sessions swept", zap.Int64("deleted", deleted))
	}
}

func runSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
