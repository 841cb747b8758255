package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

// legacyRecord 旧版聚合历史文件中的一条记录
type legacyRecord struct {
	Hostname  string                `json:"hostname"`
	TS        string                `json:"ts"`
	Timestamp string                `json:"timestamp"`
	Items     []model.CommandResult `json:"items"`
	Metrics   map[string]float64    `json:"metrics"`
	Meta      *model.SnapshotMeta   `json:"meta"`
}

func (r legacyRecord) stamp() string {
	if r.TS != "" {
		return r.TS
	}
	return r.Timestamp
}

func (r legacyRecord) snapshot(hostname string) *model.Snapshot {
	snap := &model.Snapshot{
		Hostname:  r.Hostname,
		Timestamp: r.stamp(),
		Items:     r.Items,
	}
	if snap.Hostname == "" {
		snap.Hostname = hostname
	}
	if r.Meta != nil {
		snap.Meta = *r.Meta
	}
	if len(snap.Meta.Metrics) == 0 && len(r.Metrics) > 0 {
		snap.Meta.Metrics = r.Metrics
	}
	return snap
}

// LegacyPath 旧版聚合历史文件路径
func (s *Store) LegacyPath(hostname string) string {
	return filepath.Join(s.baseDir, safeName(hostname)+"_history.json")
}

func (s *Store) legacyLastTwo(hostname string) (prev, curr *model.Snapshot, err error) {
	data, err := os.ReadFile(s.LegacyPath(hostname))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read legacy history: %w", err)
	}
	var records []legacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to decode legacy history: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].stamp() < records[j].stamp()
	})
	curr = records[len(records)-1].snapshot(hostname)
	if len(records) > 1 {
		prev = records[len(records)-2].snapshot(hostname)
	}
	return prev, curr, nil
}
