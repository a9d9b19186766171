// Package cron runs the gateway's two scheduled housekeeping jobs
// (domain-stack item A6): LOST-process reconciliation and workspace
// trash garbage collection, driven by adhocore/gronx cron expressions
// evaluated once a minute.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one scheduled task: Schedule is a standard 5-field cron
// expression, Run performs the work and returns an error to log.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Heartbeat evaluates a fixed set of Jobs once a minute and runs any
// whose schedule is due.
type Heartbeat struct {
	jobs  []Job
	gron  gronx.Gronx
	tick  time.Duration
}

// NewHeartbeat constructs a Heartbeat over jobs, ticking every minute.
func NewHeartbeat(jobs []Job) *Heartbeat {
	return &Heartbeat{jobs: jobs, gron: gronx.New(), tick: time.Minute}
}

// Run blocks, evaluating due jobs every tick until ctx is cancelled.
// A job's error is logged, never propagated — one misbehaving job must
// not stop the others or the heartbeat itself.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.runDue(ctx, now)
		}
	}
}

func (h *Heartbeat) runDue(ctx context.Context, now time.Time) {
	for _, job := range h.jobs {
		due, err := h.gron.IsDue(job.Schedule, now)
		if err != nil {
			slog.Warn("cron: invalid schedule", "job", job.Name, "schedule", job.Schedule, "error", err)
			continue
		}
		if !due {
			continue
		}
		if err := job.Run(ctx); err != nil {
			slog.Warn("cron: job failed", "job", job.Name, "error", err)
		}
	}
}
