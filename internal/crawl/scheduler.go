// Package crawl 以广度优先方式遍历 CDP/LLDP 邻接关系并为每台设备生成快照与报告
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/diff"
	"github.com/sshcollectorpro/switchdoc/internal/identity"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/neighbor"
	"github.com/sshcollectorpro/switchdoc/internal/report"
	"github.com/sshcollectorpro/switchdoc/internal/resolve"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// ErrEmptySeed 未指定种子地址
var ErrEmptySeed = errors.New("seed address is required")

// Scheduler 拓扑遍历调度器，单线程顺序处理队列
type Scheduler struct {
	Collector Collector
	Renderer  Renderer
	// OpenStore 按输出目录打开快照存储
	OpenStore func(baseDir string) SnapshotStore
	// Resolver 邻居名 DNS 解析，nil 时使用 net.DefaultResolver
	Resolver resolve.Resolver
	// Metrics 计算写入快照 meta 的设备指标，可为 nil
	Metrics func(items []model.CommandResult) map[string]float64
	// Raw 保存原始回显，可为 nil
	Raw      RawWriter
	Observer Observer
}

// Run 从种子地址开始遍历，返回生成了报告的设备。
// 只有参数错误会返回 error，单台设备的失败只记录日志。
func (s *Scheduler) Run(ctx context.Context, p Params) ([]Result, error) {
	seed := strings.TrimSpace(p.Seed)
	if seed == "" {
		return nil, ErrEmptySeed
	}
	if s.Collector == nil || s.Renderer == nil || s.OpenStore == nil {
		return nil, fmt.Errorf("scheduler requires collector, renderer and snapshot store")
	}
	allow, err := resolve.NewAllowList(p.AllowedSubnets)
	if err != nil {
		return nil, err
	}
	maxDepth := p.MaxDepth
	if maxDepth < 0 {
		maxDepth = 0
	}
	chain := &resolve.Chain{
		DNSFallback: p.DNSFallback,
		HostMap:     p.HostMap,
		Allow:       allow,
		Resolver:    s.Resolver,
	}

	queue := []QueueEntry{{Address: seed, Depth: 0}}
	seen := map[string]struct{}{}
	visited := map[string]struct{}{}
	var results []Result

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			logger.WithFields(logrus.Fields{"pending": len(queue)}).Warnf("Crawl interrupted: %v", err)
			break
		}
		entry := queue[0]
		queue = queue[1:]

		if _, ok := seen[entry.Address]; ok {
			continue
		}
		seen[entry.Address] = struct{}{}

		fields := logrus.Fields{"address": entry.Address, "depth": entry.Depth}
		if !allow.Allows(entry.Address) {
			logger.WithFields(fields).Info("Address outside allowed subnets, ignored")
			s.observe(Event{Kind: EventFiltered, Address: entry.Address, Depth: entry.Depth})
			continue
		}

		logger.WithFields(fields).Info("Connecting to device")
		res, err := s.Collector.Collect(ctx, entry.Address, p.Credentials, p.Commands)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: collector returned no result", collector.ErrConnection)
		}
		if err != nil {
			logger.WithFields(fields).Errorf("Collection failed: %v", err)
			s.observe(Event{Kind: EventCollectFailed, Address: entry.Address, Depth: entry.Depth, Err: err})
			continue
		}

		if r := s.document(ctx, entry, res, p, visited); r != nil {
			results = append(results, *r)
		}

		if entry.Depth >= maxDepth {
			continue
		}
		neighbors := neighbor.Extract(res.Items)
		logger.WithFields(logrus.Fields{"hostname": res.Hostname, "neighbors": len(neighbors)}).Info("Neighbors discovered")
		for _, c := range chain.Resolve(ctx, neighbors) {
			if _, ok := seen[c.Address]; ok {
				continue
			}
			queue = append(queue, QueueEntry{Address: c.Address, Depth: entry.Depth + 1})
			logger.WithFields(logrus.Fields{
				"neighbor": c.Neighbor.Name,
				"address":  c.Address,
				"source":   c.Source,
				"depth":    entry.Depth + 1,
			}).Info("Neighbor enqueued")
			s.observe(Event{Kind: EventEnqueued, Address: c.Address, Depth: entry.Depth + 1, Hostname: c.Neighbor.Name})
		}
	}

	logger.WithFields(logrus.Fields{"seed": seed, "reported": len(results), "seen": len(seen)}).Info("Crawl finished")
	return results, nil
}

// document 为首次访问的设备身份保存快照、比较并生成报告；重复身份返回 nil
func (s *Scheduler) document(ctx context.Context, entry QueueEntry, res *collector.Result, p Params, visited map[string]struct{}) *Result {
	host := strings.TrimSpace(res.Hostname)
	if host == "" {
		host = entry.Address
	}
	ts := res.Timestamp
	if ts == "" {
		ts = model.FormatTimestamp(time.Now())
	}
	key := identity.Resolve(res.Items, entry.Address).Best()
	fields := logrus.Fields{"hostname": host, "address": entry.Address, "identity": key}

	if _, ok := visited[key]; ok {
		logger.WithFields(fields).Info("Device already visited, report skipped")
		s.observe(Event{Kind: EventDuplicate, Address: entry.Address, Depth: entry.Depth, Hostname: host, Identity: key})
		return nil
	}
	visited[key] = struct{}{}

	baseDir := p.OutputDir
	if baseDir == "" {
		baseDir = res.WorkDir
	}
	if baseDir == "" {
		baseDir = "."
	}

	var metrics map[string]float64
	if s.Metrics != nil {
		metrics = s.Metrics(res.Items)
	}
	meta := model.SnapshotMeta{HostIP: entry.Address, Metrics: metrics}
	current := &model.Snapshot{Hostname: host, Timestamp: ts, Items: res.Items, Meta: meta}

	store := s.OpenStore(baseDir)
	snapPath, saveErr := store.Save(host, ts, res.Items, meta)
	if saveErr != nil {
		logger.WithFields(fields).Errorf("Failed to save snapshot: %v", saveErr)
	}
	prev, curr, err := store.LastTwo(host)
	switch {
	case err != nil:
		logger.WithFields(fields).Warnf("Failed to read snapshot history: %v", err)
		prev, curr = nil, current
	case saveErr != nil:
		// 快照未落盘时与历史中最新的一份比较
		prev, curr = curr, current
	case curr == nil:
		curr = current
	}
	delta := diff.Compare(prev, curr)

	if s.Raw != nil {
		if dir, err := s.Raw.WriteRaw(host, ts, res.Items, baseDir); err != nil {
			logger.WithFields(fields).Errorf("Failed to save raw outputs: %v", err)
		} else {
			logger.WithFields(fields).Debugf("Raw outputs saved to %s", dir)
		}
	}

	location, err := s.Renderer.Render(ctx, report.Input{
		Hostname:     host,
		Timestamp:    ts,
		Address:      entry.Address,
		Items:        res.Items,
		Metrics:      metrics,
		Delta:        delta,
		HadPrevious:  prev != nil,
		Previous:     prev,
		WorkDir:      baseDir,
		SnapshotPath: snapPath,
	})
	if err != nil {
		logger.WithFields(fields).Errorf("Failed to render report: %v", err)
		s.observe(Event{Kind: EventReportFailed, Address: entry.Address, Depth: entry.Depth, Hostname: host, Identity: key, Err: err})
		return nil
	}

	r := &Result{
		Hostname:     host,
		Location:     location,
		Address:      entry.Address,
		Timestamp:    ts,
		Identity:     key,
		SnapshotPath: snapPath,
		Changed:      prev != nil && !delta.Empty(),
	}
	logger.WithFields(fields).WithField("report", location).Info("Report generated")
	s.observe(Event{
		Kind:     EventReported,
		Address:  entry.Address,
		Depth:    entry.Depth,
		Hostname: host,
		Identity: key,
		Result:   r,
		Delta:    &delta,
		Metrics:  metrics,
	})
	return r
}

func (s *Scheduler) observe(e Event) {
	if s.Observer != nil {
		s.Observer.Observe(e)
	}
}
