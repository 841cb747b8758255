package crawl

import (
	"context"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/diff"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/report"
)

// Collector 登录设备并执行命令
type Collector interface {
	Collect(ctx context.Context, address string, creds collector.Credentials, commands []string) (*collector.Result, error)
}

// Renderer 生成设备报告，返回报告位置
type Renderer interface {
	Render(ctx context.Context, in report.Input) (string, error)
}

// SnapshotStore 单个输出目录下的快照存储
type SnapshotStore interface {
	Save(hostname, timestamp string, items []model.CommandResult, meta model.SnapshotMeta) (string, error)
	LastTwo(hostname string) (prev, curr *model.Snapshot, err error)
}

// RawWriter 保存命令原始回显
type RawWriter interface {
	WriteRaw(hostname, timestamp string, items []model.CommandResult, baseDir string) (string, error)
}

// QueueEntry 待访问的地址与深度
type QueueEntry struct {
	Address string
	Depth   int
}

// Params 一次遍历的参数
type Params struct {
	Seed           string
	Credentials    collector.Credentials
	MaxDepth       int
	AllowedSubnets []string
	DNSFallback    bool
	HostMap        map[string]string
	// OutputDir 非空时所有设备共用该目录，否则使用采集返回的设备目录
	OutputDir string
	Commands  []string
}

// Result 已生成报告的设备
type Result struct {
	Hostname     string `json:"hostname"`
	Location     string `json:"location"`
	Address      string `json:"address"`
	Timestamp    string `json:"timestamp"`
	Identity     string `json:"identity"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
	Changed      bool   `json:"changed"`
}

// EventKind 遍历事件类型
type EventKind string

const (
	EventFiltered      EventKind = "filtered"
	EventCollectFailed EventKind = "collect_failed"
	EventDuplicate     EventKind = "duplicate"
	EventReported      EventKind = "reported"
	EventReportFailed  EventKind = "report_failed"
	EventEnqueued      EventKind = "enqueued"
)

// Event 遍历过程中的事件，供指标、索引与投递使用
type Event struct {
	Kind     EventKind
	Address  string
	Depth    int
	Hostname string
	Identity string
	Result   *Result
	Delta    *diff.Report
	Metrics  map[string]float64
	Err      error
}

// Observer 接收遍历事件，实现需快速返回
type Observer interface {
	Observe(Event)
}

// ObserverFunc 函数形式的 Observer
type ObserverFunc func(Event)

// Observe 调用 f(e)
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers 依次转发给多个 Observer
type Observers []Observer

// Observe 实现 Observer
func (o Observers) Observe(e Event) {
	for _, ob := range o {
		if ob != nil {
			ob.Observe(e)
		}
	}
}
