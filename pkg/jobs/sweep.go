package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/onebottle/onebottle-api/pkg/tools"
	"github.com/robfig/cron/v3"
)

// Sweeper removes blobs no bottle refers to.
type Sweeper interface {
	SweepOrphans(ctx context.Context) (int, error)
}

// ScheduleOrphanSweep sets up a cron job that sweeps orphaned blobs on the
// given schedule. The job stops when ctx is done.
func ScheduleOrphanSweep(ctx context.Context, schedule string, svc Sweeper) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		tools.Dispatch(context.Background(), "sweep", func(ctx context.Context) error {
			n, err := svc.SweepOrphans(ctx)
			if n > 0 {
				log.Printf("[sweep] deleted %d orphaned blobs", n)
			}
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
