package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sshcollectorpro/switchdoc/internal/config"
)

func TestNewSchedulerDefaultSpec(t *testing.T) {
	s := NewScheduler(config.ScheduleConfig{Cron: "  "}, nil)
	assert.Equal(t, defaultCronSpec, s.cronExpr)
}

// TestRunOnceSkipsWhileRunning 上一次未结束时跳过
func TestRunOnceSkipsWhileRunning(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	s := NewScheduler(config.ScheduleConfig{}, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		s.runOnce()
		close(done)
	}()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)

	s.runOnce()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	<-done
	s.runOnce()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunOnceCancelledParent(t *testing.T) {
	var calls int32
	s := NewScheduler(config.ScheduleConfig{}, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("should not run")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.parent = ctx
	s.runOnce()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestStartInvalidSpec(t *testing.T) {
	s := NewScheduler(config.ScheduleConfig{Cron: "not a cron"}, func(context.Context) error { return nil })
	stop := s.Start(context.Background())
	assert.NotNil(t, stop)
	stop()
	assert.Nil(t, s.cron)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(config.ScheduleConfig{Cron: "@every 1h"}, func(context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	stop := s.Start(ctx)
	assert.NotNil(t, s.cron)
	cancel()
	stop()
}
