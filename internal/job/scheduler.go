package job

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

const defaultCronSpec = "0 7 * * *"

// Scheduler 按 cron 表达式周期触发拓扑遍历，上一次未结束时跳过本次
type Scheduler struct {
	cronExpr string
	cron     *cron.Cron
	runFunc  func(context.Context) error
	parent   context.Context
	mu       sync.Mutex
	running  bool
}

// NewScheduler 根据配置构建调度器
func NewScheduler(cfg config.ScheduleConfig, runFunc func(context.Context) error) *Scheduler {
	spec := strings.TrimSpace(cfg.Cron)
	if spec == "" {
		spec = defaultCronSpec
	}
	return &Scheduler{cronExpr: spec, runFunc: runFunc}
}

// Start 启动调度器，返回用于停止任务的函数
func (s *Scheduler) Start(parent context.Context) context.CancelFunc {
	if s == nil {
		return func() {}
	}
	s.parent = parent
	c := cron.New()
	id, err := c.AddFunc(s.cronExpr, s.runOnce)
	if err != nil {
		logger.WithFields(logrus.Fields{"cron": s.cronExpr}).Errorf("Failed to register cron job: %v", err)
		return func() {}
	}
	s.cron = c
	c.Start()
	logger.WithFields(logrus.Fields{"cron": s.cronExpr, "next": c.Entry(id).Next}).Info("Crawl scheduler started")

	var once sync.Once
	stop := func() {
		once.Do(func() {
			ctx := s.cron.Stop()
			<-ctx.Done()
			logger.Info("Crawl scheduler stopped")
		})
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop
}

func (s *Scheduler) runOnce() {
	if s.runFunc == nil {
		logger.Warn("Scheduled crawl function not configured")
		return
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("Previous crawl still running, skip current schedule")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx := context.Background()
	if s.parent != nil {
		if s.parent.Err() != nil {
			logger.Info("Scheduler context cancelled, skip crawl")
			return
		}
		runCtx = s.parent
	}

	start := time.Now()
	err := s.runFunc(runCtx)
	fields := logrus.Fields{"duration": time.Since(start).String()}
	if err != nil {
		logger.WithFields(fields).Errorf("Scheduled crawl failed: %v", err)
		return
	}
	logger.WithFields(fields).Info("Scheduled crawl completed")
}
