package model

import (
	"strings"
	"time"
)

// TimestampLayout 快照时间戳格式，字典序即时间序
const TimestampLayout = "2006-01-02_15-04-05"

// FormatTimestamp 按快照时间戳格式输出
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// CommandResult 单条命令的原始回显与解析结果
type CommandResult struct {
	Command string     `json:"cmd"`
	Raw     string     `json:"raw"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Cell 读取第 i 列，缺失的尾部单元格视为空
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Empty 没有解析出任何表格数据
func (c CommandResult) Empty() bool {
	return len(c.Headers) == 0 || len(c.Rows) == 0
}

// SnapshotMeta 快照附加信息
type SnapshotMeta struct {
	HostIP  string             `json:"host_ip"`
	Metrics map[string]float64 `json:"metrics"`
}

// Snapshot 设备在某一时刻的完整采集结果，写入后不可变
type Snapshot struct {
	Hostname  string          `json:"hostname"`
	Timestamp string          `json:"timestamp"`
	Items     []CommandResult `json:"items"`
	Meta      SnapshotMeta    `json:"meta"`
}

// FindItem 返回命令名包含 substr 的第一条结果（不区分大小写）
func FindItem(items []CommandResult, substr string) (CommandResult, bool) {
	needle := strings.ToLower(substr)
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Command), needle) {
			return it, true
		}
	}
	return CommandResult{}, false
}
