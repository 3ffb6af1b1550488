package main

import (
	"context"
	"fmt"
	"time"

	"tierscale/internal/jobs"
	"tierscale/pkg/logger"
)

func (app *Application) initJobs() error {
	interval := app.config.AutoScaler.PollDuration()
	if interval <= 0 {
		logger.InfoCtx(app.ctx, "autoscaler.poll_interval not set, periodic reconcile disabled")
		return nil
	}

	manager := jobs.NewManager(app.ctx)
	manager.Register(newReconcileJob(interval, app.autoscalerMgr))

	app.jobsManager = manager
	return nil
}

// reconciler is satisfied by *autoscaler.Manager
type reconciler interface {
	Reconcile(ctx context.Context) error
}

// reconcileJob periodically re-evaluates every queue type. It catches
// hooks that were lost or evaluated while a provider was failing.
// The manager takes the poll lock, so only one replica reconciles per tick.
type reconcileJob struct {
	interval time.Duration
	manager  reconciler
}

func newReconcileJob(interval time.Duration, manager reconciler) jobs.DelayedJob {
	return &reconcileJob{
		interval: interval,
		manager:  manager,
	}
}

func (j *reconcileJob) Name() string {
	return "autoscaler-reconcile"
}

func (j *reconcileJob) Interval() time.Duration {
	return j.interval
}

// SkipInitialRun lets hooks settle after startup before the first sweep
func (j *reconcileJob) SkipInitialRun() bool {
	return true
}

func (j *reconcileJob) Run(ctx context.Context) error {
	if j.manager == nil {
		return fmt.Errorf("autoscaler manager not configured")
	}
	logger.DebugCtx(ctx, "running autoscaler reconcile job")
	return j.manager.Reconcile(ctx)
}
