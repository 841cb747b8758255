package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/internal/diff"
	"github.com/sshcollectorpro/switchdoc/internal/model"
)

func sampleItems() []model.CommandResult {
	return []model.CommandResult{
		{Command: "show interfaces status", Headers: []string{"Port", "Name", "Status", "Vlan"},
			Rows: [][]string{
				{"Gi1/0/1", "", "connected", "10"},
				{"Gi1/0/2", "", "notconnect", "20"},
				{"Po1", "", "connected", "trunk"},
				{"Vlan10", "", "up", ""},
			}},
		{Command: "show vlan brief", Headers: []string{"vlan_id", "name", "status", "interfaces"},
			Rows: [][]string{{"1", "default", "active", ""}, {"10", "users", "active", ""}, {"99", "old", "act/unsup", ""}}},
		{Command: "show cdp neighbors detail", Headers: []string{"device_id"}, Rows: [][]string{{"a"}, {"b"}}},
		{Command: "show inventory", Headers: []string{"name", "serial"}, Rows: [][]string{{"Chassis", "X"}}},
	}
}

func TestDeviceMetrics(t *testing.T) {
	m := DeviceMetrics(sampleItems())
	// 测试用例1：逻辑口不计入
	assert.Equal(t, 2.0, m[MetricInterfacesTotal])
	assert.Equal(t, 1.0, m[MetricInterfacesUp])
	assert.Equal(t, 1.0, m[MetricInterfacesDown])
	assert.Equal(t, 2.0, m[MetricVlansActive])
	assert.Equal(t, 2.0, m[MetricCDPTotal])
	assert.Equal(t, 1.0, m[MetricInventoryTotal])

	// 测试用例2：无表格时从原始文本统计 active VLAN
	raw := "VLAN Name Status Ports\n---- ---- ------ -----\n1    default   active    Gi1/0/1\n20   voice     active\n1002 fddi      act/unsup\n"
	m = DeviceMetrics([]model.CommandResult{{Command: "show vlan brief", Raw: raw}})
	assert.Equal(t, 2.0, m[MetricVlansActive])
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "show_interfaces_status", Slug("show interfaces status"))
	assert.Equal(t, "show_run_int_gi1_0_1", Slug(" Show run int Gi1/0/1 "))
	assert.Equal(t, "show_ip_route_vrf_a_b", Slug("show ip route vrf a|b"))
	assert.Equal(t, "unknown_cmd", Slug("|||"))
}

func TestRawWriter(t *testing.T) {
	base := t.TempDir()
	w := &RawWriter{}
	items := []model.CommandResult{{Command: "show version", Raw: "Cisco IOS\n"}}

	dir, err := w.WriteRaw("sw1", "2024-01-01_00-00-00", items, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sw1"), dir)
	data, err := os.ReadFile(filepath.Join(dir, "sw1_show_version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "# Hostname: sw1\n# Command: show version\n# Timestamp: 2024-01-01_00-00-00\n# ---\nCisco IOS\n", string(data))

	// 基础目录已以主机名结尾时不重复追加
	dir, err = w.WriteRaw("sw1", "2024-01-01_00-00-00", items, filepath.Join(base, "sw1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sw1"), dir)

	w.TimestampSubdir = true
	dir, err = w.WriteRaw("sw1", "2024-01-01_00-00-00", items, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sw1", "2024-01-01_00-00-00"), dir)
}

func TestSimpleDiff(t *testing.T) {
	prev := &model.Snapshot{Items: sampleItems()}
	currItems := sampleItems()
	currItems[0].Rows[1][2] = "connected"
	currItems[1].Rows = append(currItems[1].Rows, []string{"30", "new", "active", ""})
	curr := &model.Snapshot{Items: currItems}

	s := SimpleDiff(prev, curr)
	assert.Equal(t, Count{Prev: 3, Curr: 4, Delta: 1}, s.RowsDelta["show vlan brief"])
	assert.Equal(t, []string{"30"}, s.VlansAdded)
	assert.Empty(t, s.VlansRemoved)
	assert.Equal(t, Count{Prev: 3, Curr: 4, Delta: 1}, s.InterfacesConnectedDelta)

	empty := SimpleDiff(nil, curr)
	assert.Empty(t, empty.RowsDelta)
}

func TestJSONRenderer(t *testing.T) {
	dir := t.TempDir()
	prev := &model.Snapshot{Items: sampleItems()}
	in := Input{
		Hostname:    "sw1",
		Timestamp:   "2024-01-02_00-00-00",
		Address:     "10.0.0.1",
		Items:       sampleItems(),
		Metrics:     DeviceMetrics(sampleItems()),
		Delta:       diff.Compare(prev, &model.Snapshot{Items: sampleItems()}),
		HadPrevious: true,
		Previous:    prev,
		WorkDir:     dir,
	}
	path, err := JSONRenderer{}.Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sw1_report.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "sw1", doc.Hostname)
	assert.False(t, doc.Changed)
	assert.Len(t, doc.Items, 4)
	require.NotNil(t, doc.Summary)
	assert.True(t, strings.HasPrefix(doc.Timestamp, "2024-01-02"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
