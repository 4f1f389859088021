package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/skillsmith/coursegen/internal/store"
)

// Scheduler periodically rescans plans carrying a refresh cron and fires
// regeneration runs for the ones that are due. A Redis lock keeps multiple
// instances from firing the same plan.
type Scheduler struct {
	Store        *store.Store
	Rdb          *redis.Client
	Stop         chan struct{}
	ScanInterval time.Duration
	LockTTL      time.Duration
	Fire         func(ctx context.Context, plan store.CoursePlanRecord) error
	Logger       *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	interval := s.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	plans, err := s.Store.ListRefreshablePlans(ctx)
	if err != nil {
		s.Logger.Printf("list refreshable plans: %v", err)
		return
	}
	for _, plan := range plans {
		last := plan.UpdatedAt
		if !isDue(plan.RefreshCron, &last) {
			continue
		}

		if s.Rdb != nil {
			lockKey := "sched:lock:" + plan.ID
			ttl := s.LockTTL
			if ttl <= 0 {
				ttl = 10 * time.Minute
			}
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", ttl).Result()
			if !ok {
				continue
			}
		}

		// jitter to avoid stampedes
		time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
		if err := s.Fire(ctx, plan); err != nil {
			s.Logger.Printf("refresh plan %s: %v", plan.ID, err)
			continue
		}
		// advance updated_at so the plan is not due again until the next
		// cron window; without this every scan would refire it
		if err := s.Store.MarkCoursePlanRefreshed(ctx, plan.ID); err != nil {
			s.Logger.Printf("mark plan %s refreshed: %v", plan.ID, err)
		}
		s.Logger.Printf("refresh fired for plan %s (cron %q)", plan.ID, plan.RefreshCron)
	}
}

// isDue determines whether a plan with cronSpec should refresh now given its
// last update time. Supports "@daily", "@hourly" and 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
