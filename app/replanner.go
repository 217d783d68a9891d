package app

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/foundry/core/logger"
	"github.com/kilianp07/foundry/core/planner"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Submitter queues planner runs.
type Submitter interface {
	Submit(scenario string) (planner.RunStatus, error)
}

// Replanner submits the configured scenarios on a cron schedule.
type Replanner struct {
	cron      *cron.Cron
	scenarios []string
	sub       Submitter
	log       logger.Logger
}

// NewReplanner schedules every scenario in cfg on cfg.Cron. With no scenarios
// the returned Replanner is idle.
func NewReplanner(cfg planner.Config, sub Submitter, log logger.Logger) (*Replanner, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	r := &Replanner{
		cron:      cron.New(cron.WithParser(cronParser)),
		scenarios: append([]string(nil), cfg.Scenarios...),
		sub:       sub,
		log:       log,
	}
	if len(r.scenarios) == 0 {
		return r, nil
	}
	sched, err := cronParser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}
	r.cron.Schedule(sched, cron.FuncJob(r.submitAll))
	return r, nil
}

func (r *Replanner) submitAll() {
	for _, sc := range r.scenarios {
		st, err := r.sub.Submit(sc)
		switch {
		case errors.Is(err, planner.ErrScenarioBusy):
			r.log.Debugf("scheduled plan of %s skipped: run in flight", sc)
		case err != nil:
			r.log.Errorf("scheduled plan of %s: %v", sc, err)
		default:
			r.log.Infof("scheduled plan of %s queued as %s", sc, st.ID)
		}
	}
}

// Start runs the schedule in its own goroutine.
func (r *Replanner) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running job to finish.
func (r *Replanner) Stop() { <-r.cron.Stop().Done() }

// Entries reports how many schedules are registered.
func (r *Replanner) Entries() int { return len(r.cron.Entries()) }
