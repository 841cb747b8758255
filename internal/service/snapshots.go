package service

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/diff"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/snapshot"
)

// ErrInvalidName 主机名或时间戳含非法字符
var ErrInvalidName = errors.New("invalid hostname or timestamp")

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

func validName(s string) bool {
	return nameRe.MatchString(s) && !strings.Contains(s, "..")
}

// SnapshotQuery 按设备读取本地快照历史
type SnapshotQuery struct {
	mu  sync.RWMutex
	cfg *config.Config
}

// NewSnapshotQuery 创建快照查询
func NewSnapshotQuery(cfg *config.Config) *SnapshotQuery {
	return &SnapshotQuery{cfg: cfg}
}

// SetConfig 配置热更新后替换
func (q *SnapshotQuery) SetConfig(cfg *config.Config) {
	q.mu.Lock()
	q.cfg = cfg
	q.mu.Unlock()
}

// StoreFor 设备快照所在的存储：配置了统一输出目录时共用，否则为 <base_dir>/<hostname>
func (q *SnapshotQuery) StoreFor(hostname string) *snapshot.Store {
	q.mu.RLock()
	cfg := q.cfg
	q.mu.RUnlock()
	base := cfg.Crawl.OutputDir
	if base == "" {
		base = filepath.Join(cfg.Snapshot.BaseDir, hostname)
	}
	return snapshot.NewStore(base, cfg.Snapshot.MaxKeep)
}

// List 时间戳升序
func (q *SnapshotQuery) List(hostname string) ([]string, error) {
	if !validName(hostname) {
		return nil, ErrInvalidName
	}
	return q.StoreFor(hostname).List(hostname)
}

// Load 读取指定快照
func (q *SnapshotQuery) Load(hostname, timestamp string) (*model.Snapshot, error) {
	if !validName(hostname) || !validName(timestamp) {
		return nil, ErrInvalidName
	}
	return q.StoreFor(hostname).Load(hostname, timestamp)
}

// DiffResult 最近两份快照的比较结果
type DiffResult struct {
	Hostname string      `json:"hostname"`
	Previous string      `json:"previous,omitempty"`
	Current  string      `json:"current,omitempty"`
	Delta    diff.Report `json:"delta"`
	Changed  bool        `json:"changed"`
}

// Diff 比较最近两份快照；没有快照时返回 snapshot.ErrNotFound
func (q *SnapshotQuery) Diff(hostname string) (*DiffResult, error) {
	if !validName(hostname) {
		return nil, ErrInvalidName
	}
	prev, curr, err := q.StoreFor(hostname).LastTwo(hostname)
	if err != nil {
		return nil, err
	}
	if curr == nil {
		return nil, snapshot.ErrNotFound
	}
	out := &DiffResult{Hostname: hostname, Current: curr.Timestamp, Delta: diff.Compare(prev, curr)}
	if prev != nil {
		out.Previous = prev.Timestamp
		out.Changed = !out.Delta.Empty()
	}
	return out, nil
}
