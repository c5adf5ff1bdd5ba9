package usecase

import (
	"time"

	"perkloop/pkg/logger"

	"github.com/go-co-op/gocron/v2"
)

const sweepBatchSize = 500

// StartSweeper schedules the daily job that expires stale pending
// redemptions. Expiry is otherwise discovered lazily at commit time, so the
// sweep only bounds how long a dead hold can over-reserve a balance.
func StartSweeper(uc RedemptionUseCase, log *logger.Logger, hour int) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(func() {
			expired, err := uc.ExpireStale(sweepBatchSize)
			if err != nil {
				log.Error("[Sweeper] failed: %v", err)
				return
			}
			if expired > 0 {
				log.Info("[Sweeper] expired %d stale redemptions", expired)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
