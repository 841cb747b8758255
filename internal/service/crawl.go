package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/metrics"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/report"
	"github.com/sshcollectorpro/switchdoc/internal/resolve"
	"github.com/sshcollectorpro/switchdoc/internal/snapshot"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// ErrCrawlRunning 已有遍历在执行
var ErrCrawlRunning = errors.New("a crawl is already running")

// CrawlRequest 一次遍历的可覆盖参数，零值字段使用配置
type CrawlRequest struct {
	Seed           string   `json:"seed"`
	MaxDepth       *int     `json:"max_depth,omitempty"`
	AllowedSubnets []string `json:"allowed_subnets,omitempty"`
	OutputDir      string   `json:"output_dir,omitempty"`
	Commands       []string `json:"commands,omitempty"`
}

// CrawlService 组装遍历依赖并保证同一时刻只有一次遍历
type CrawlService struct {
	cfg       *config.Config
	collector crawl.Collector
	renderer  crawl.Renderer
	mirror    *MinioMirror
	observers crawl.Observers
	// ctx 服务生命周期，异步遍历使用
	ctx context.Context

	mu      sync.Mutex
	running bool
	current string
	// done 在当前遍历结束时关闭
	done chan struct{}
}

// NewCrawlService 创建遍历服务；observers 接收每次遍历的事件
func NewCrawlService(ctx context.Context, cfg *config.Config, coll crawl.Collector, observers ...crawl.Observer) *CrawlService {
	s := &CrawlService{
		cfg:       cfg,
		collector: coll,
		renderer:  report.JSONRenderer{},
		observers: observers,
		ctx:       ctx,
	}
	if cfg.Snapshot.MirrorMinio {
		s.mirror = NewMinioMirror(cfg.Storage.Minio)
	}
	return s
}

// Config 当前配置
func (s *CrawlService) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetConfig 配置热更新后替换；进行中的遍历继续使用旧配置
func (s *CrawlService) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Running 返回进行中的遍历 id
func (s *CrawlService) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.running
}

// Params 合并配置与请求得到遍历参数
func (s *CrawlService) Params(req CrawlRequest) (crawl.Params, error) {
	cfg := s.Config()

	seed := strings.TrimSpace(req.Seed)
	if seed == "" {
		seed = strings.TrimSpace(cfg.Crawl.Seed)
	}
	if seed == "" {
		return crawl.Params{}, crawl.ErrEmptySeed
	}
	depth := cfg.Crawl.MaxDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	subnets := cfg.Crawl.AllowedSubnets
	if len(req.AllowedSubnets) > 0 {
		subnets = req.AllowedSubnets
	}
	if _, err := resolve.NewAllowList(subnets); err != nil {
		return crawl.Params{}, err
	}
	outDir := cfg.Crawl.OutputDir
	if req.OutputDir != "" {
		outDir = req.OutputDir
	}
	commands := cfg.Crawl.Commands
	if len(req.Commands) > 0 {
		commands = req.Commands
	}

	var hostMap map[string]string
	if cfg.Crawl.HostMapFile != "" {
		m, err := resolve.LoadHostMap(cfg.Crawl.HostMapFile)
		if err != nil {
			return crawl.Params{}, err
		}
		hostMap = m
	}

	c := cfg.Credentials
	return crawl.Params{
		Seed: seed,
		Credentials: collector.Credentials{
			Username:       c.Username,
			Password:       c.Password,
			EnablePassword: c.EnablePassword,
			KeyFile:        c.KeyFile,
			KeyPassphrase:  c.KeyPassphrase,
			Port:           c.Port,
		},
		MaxDepth:       depth,
		AllowedSubnets: subnets,
		DNSFallback:    cfg.Crawl.DNSFallback,
		HostMap:        hostMap,
		OutputDir:      outDir,
		Commands:       commands,
	}, nil
}

// OpenStore 按输出目录打开快照存储，按配置附加 MinIO 备份
func (s *CrawlService) OpenStore(baseDir string) crawl.SnapshotStore {
	store := snapshot.NewStore(baseDir, s.Config().Snapshot.MaxKeep)
	return MirrorStore(s.ctx, store, s.mirror)
}

// rawWriter 配置关闭原始回显时返回 nil
func (s *CrawlService) rawWriter() crawl.RawWriter {
	rc := s.Config().Report
	if !rc.RawOutputs {
		return nil
	}
	return &report.RawWriter{Dir: rc.RawDir, TimestampSubdir: rc.RawTSSubdir}
}

func (s *CrawlService) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.current = id
	s.done = make(chan struct{})
	return true
}

func (s *CrawlService) release() {
	s.mu.Lock()
	s.running = false
	s.current = ""
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
}

// Wait 等待进行中的遍历结束，ctx 结束时返回 ctx.Err()
func (s *CrawlService) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 同步执行一次遍历；已有遍历时返回 ErrCrawlRunning
func (s *CrawlService) Run(ctx context.Context, trigger string, p crawl.Params) (*model.CrawlRun, []crawl.Result, error) {
	run := newRun(trigger, p)
	if !s.acquire(run.ID) {
		return nil, nil, ErrCrawlRunning
	}
	defer s.release()
	results, err := s.execute(ctx, run, p)
	return run, results, err
}

// Start 异步执行一次遍历，立即返回运行记录
func (s *CrawlService) Start(trigger string, p crawl.Params) (*model.CrawlRun, error) {
	run := newRun(trigger, p)
	if !s.acquire(run.ID) {
		return nil, ErrCrawlRunning
	}
	s.record(func() error { return database.CreateRun(run) })
	snapshotRun := *run
	go func() {
		defer s.release()
		_, _ = s.execute(s.ctx, run, p)
	}()
	return &snapshotRun, nil
}

func newRun(trigger string, p crawl.Params) *model.CrawlRun {
	return &model.CrawlRun{
		ID:       uuid.New().String(),
		Seed:     p.Seed,
		MaxDepth: p.MaxDepth,
		Trigger:  trigger,
		Status:   model.RunStatusPending,
	}
}

// execute 执行遍历并记录运行结果
func (s *CrawlService) execute(ctx context.Context, run *model.CrawlRun, p crawl.Params) ([]crawl.Result, error) {
	log := logger.WithFields(logrus.Fields{"run_id": run.ID, "seed": p.Seed, "trigger": run.Trigger})
	run.Status = model.RunStatusRunning
	run.StartTime = time.Now()
	s.record(func() error { return database.SaveRun(run) })

	rec := &runRecorder{runID: run.ID, record: s.record}
	observers := append(crawl.Observers{metrics.Observer(), rec}, s.observers...)
	sched := &crawl.Scheduler{
		Collector: s.collector,
		Renderer:  s.renderer,
		OpenStore: s.OpenStore,
		Metrics:   report.DeviceMetrics,
		Raw:       s.rawWriter(),
		Observer:  observers,
	}

	log.Info("Crawl started")
	results, err := sched.Run(ctx, p)

	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime).Milliseconds()
	run.Reported = len(results)
	run.Failed = rec.failed()
	if reports, jerr := json.Marshal(results); jerr == nil {
		run.Reports = string(reports)
	}
	run.Status = model.RunStatusSuccess
	if err != nil {
		run.Status = model.RunStatusFailed
		run.ErrorMsg = err.Error()
	}
	s.record(func() error { return database.SaveRun(run) })
	metrics.ObserveRun(run.EndTime.Sub(run.StartTime), err)

	log.WithFields(logrus.Fields{
		"status":   run.Status,
		"reported": run.Reported,
		"failed":   run.Failed,
		"duration": fmt.Sprintf("%dms", run.Duration),
	}).Info("Crawl completed")
	return results, err
}

// record 数据库未初始化时跳过，写入失败只记录日志
func (s *CrawlService) record(fn func() error) {
	if database.GetDB() == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warnf("Failed to record crawl history: %v", err)
	}
}

// CollectOne 单台设备采集：rawOnly 时保存快照与原始回显后返回，不生成报告；否则按深度 0 遍历
func (s *CrawlService) CollectOne(ctx context.Context, p crawl.Params, rawOnly bool) ([]crawl.Result, string, error) {
	if !rawOnly {
		p.MaxDepth = 0
		_, results, err := s.Run(ctx, model.TriggerCLI, p)
		return results, "", err
	}

	res, err := s.collector.Collect(ctx, p.Seed, p.Credentials, p.Commands)
	if err != nil {
		return nil, "", err
	}
	baseDir := p.OutputDir
	if baseDir == "" {
		baseDir = res.WorkDir
	}
	meta := model.SnapshotMeta{HostIP: p.Seed, Metrics: report.DeviceMetrics(res.Items)}
	fields := logrus.Fields{"hostname": res.Hostname, "address": p.Seed}
	if snapPath, err := s.OpenStore(baseDir).Save(res.Hostname, res.Timestamp, res.Items, meta); err != nil {
		logger.WithFields(fields).Errorf("Failed to save snapshot: %v", err)
	} else {
		logger.WithFields(fields).Infof("Snapshot saved to %s", snapPath)
	}

	rc := s.Config().Report
	w := &report.RawWriter{Dir: rc.RawDir, TimestampSubdir: rc.RawTSSubdir}
	dir, err := w.WriteRaw(res.Hostname, res.Timestamp, res.Items, baseDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to save raw outputs: %w", err)
	}
	return nil, dir, nil
}

// runRecorder 记录设备状态并统计采集失败数
type runRecorder struct {
	runID  string
	record func(func() error)
	mu     sync.Mutex
	nfail  int
}

func (r *runRecorder) Observe(e crawl.Event) {
	switch e.Kind {
	case crawl.EventCollectFailed, crawl.EventReportFailed:
		r.mu.Lock()
		r.nfail++
		r.mu.Unlock()
	case crawl.EventReported:
		if e.Result == nil {
			return
		}
		rec := &model.DeviceRecord{
			Hostname:     e.Result.Hostname,
			Address:      e.Result.Address,
			IdentityKey:  e.Result.Identity,
			LastRunID:    r.runID,
			LastSnapshot: e.Result.SnapshotPath,
			LastReport:   e.Result.Location,
			Changed:      e.Result.Changed,
			LastSeen:     time.Now(),
		}
		r.record(func() error { return database.UpsertDevice(rec) })
	}
}

func (r *runRecorder) failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nfail
}

// RunScheduled 定时任务入口，使用配置中的种子地址
func (s *CrawlService) RunScheduled(ctx context.Context) error {
	p, err := s.Params(CrawlRequest{})
	if err != nil {
		return err
	}
	_, _, err = s.Run(ctx, model.TriggerSchedule, p)
	return err
}
