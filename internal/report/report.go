// Package report 生成设备文档：JSON 报告、原始回显文件与设备指标
package report

import (
	"github.com/sshcollectorpro/switchdoc/internal/diff"
	"github.com/sshcollectorpro/switchdoc/internal/model"
)

// Input 报告生成所需的数据
type Input struct {
	Hostname  string
	Timestamp string
	Address   string
	Items     []model.CommandResult
	Metrics   map[string]float64
	Delta     diff.Report
	// HadPrevious 存在上一份快照时为 true，否则 Delta 表示全部新增
	HadPrevious  bool
	Previous     *model.Snapshot
	WorkDir      string
	SnapshotPath string
}

// ItemSummary 单条命令的解析概况
type ItemSummary struct {
	Command string `json:"command"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
}

// Document JSON 报告内容
type Document struct {
	Hostname     string             `json:"hostname"`
	Timestamp    string             `json:"timestamp"`
	Address      string             `json:"address"`
	SnapshotPath string             `json:"snapshot_path,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
	Items        []ItemSummary      `json:"items"`
	HadPrevious  bool               `json:"had_previous"`
	Changed      bool               `json:"changed"`
	Delta        diff.Report        `json:"delta"`
	Summary      *Summary           `json:"summary,omitempty"`
}

// Build 由 Input 构造报告内容
func Build(in Input) Document {
	doc := Document{
		Hostname:     in.Hostname,
		Timestamp:    in.Timestamp,
		Address:      in.Address,
		SnapshotPath: in.SnapshotPath,
		Metrics:      in.Metrics,
		Items:        make([]ItemSummary, 0, len(in.Items)),
		HadPrevious:  in.HadPrevious,
		Changed:      in.HadPrevious && !in.Delta.Empty(),
		Delta:        in.Delta,
	}
	if doc.Metrics == nil {
		doc.Metrics = map[string]float64{}
	}
	for _, it := range in.Items {
		doc.Items = append(doc.Items, ItemSummary{Command: it.Command, Columns: len(it.Headers), Rows: len(it.Rows)})
	}
	if in.Previous != nil {
		curr := &model.Snapshot{Hostname: in.Hostname, Timestamp: in.Timestamp, Items: in.Items}
		s := SimpleDiff(in.Previous, curr)
		doc.Summary = &s
	}
	return doc
}
