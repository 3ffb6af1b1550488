package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tierscale/pkg/logger"
)

type delayedJob struct {
	FuncJob
}

func (delayedJob) SkipInitialRun() bool { return true }

func TestManager_RunsJobsUntilStopped(t *testing.T) {
	var runs int32
	var traced atomic.Bool
	m := NewManager(context.Background())
	m.Register(FuncJob{
		JobName:     "counter",
		JobInterval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			if logger.TraceID(ctx) != "0" {
				traced.Store(true)
			}
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	m.Register(nil)
	assert.Equal(t, []string{"counter"}, m.Names())

	m.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Wait()
	assert.True(t, traced.Load())

	stopped := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&runs))
}

func TestManager_SurvivesErrorsAndPanics(t *testing.T) {
	var runs int32
	m := NewManager(context.Background())
	m.Register(FuncJob{
		JobName:     "flaky",
		JobInterval: 5 * time.Millisecond,
		Fn: func(context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n == 1 {
				panic("boom")
			}
			return errors.New("still broken")
		},
	})
	m.Register(FuncJob{JobName: "empty", JobInterval: time.Hour})

	m.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	m.Wait()
}

func TestManager_DelayedJobSkipsInitialRun(t *testing.T) {
	var runs int32
	m := NewManager(context.Background())
	m.Register(delayedJob{FuncJob{
		JobName:     "delayed",
		JobInterval: time.Hour,
		Fn: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}})

	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Wait()
	assert.Zero(t, atomic.LoadInt32(&runs))
}

func TestManager_RegisterAfterStartIgnored(t *testing.T) {
	m := NewManager(context.Background())
	m.Start()
	m.Register(FuncJob{JobName: "late", JobInterval: time.Hour})
	assert.Empty(t, m.Names())
	m.Stop()
	m.Wait()
}
