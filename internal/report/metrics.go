package report

import (
	"regexp"
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/table"
)

// 设备指标名
const (
	MetricInterfacesTotal = "interfaces_total"
	MetricInterfacesUp    = "interfaces_up"
	MetricInterfacesDown  = "interfaces_down"
	MetricVlansActive     = "vlans_active"
	MetricCDPTotal        = "cdp_total"
	MetricInventoryTotal  = "inventory_total"
)

// 逻辑口不计入物理接口统计
var logicalPortPrefixes = []string{"po", "port-channel", "vlan", "lo", "loopback", "tunnel", "nve", "virtual"}

var activeVlanLine = regexp.MustCompile(`(?i)^\s*(\d{1,4})\s+.*?\bactive\b`)

var (
	vlanColumn   = table.Aliases{Contains: []string{"vlan"}}
	statusColumn = table.Aliases{Contains: []string{"status", "state"}}
)

// DeviceMetrics 从采集结果计算接口、VLAN、CDP 与库存数量
func DeviceMetrics(items []model.CommandResult) map[string]float64 {
	m := map[string]float64{
		MetricInterfacesTotal: 0,
		MetricInterfacesUp:    0,
		MetricInterfacesDown:  0,
		MetricVlansActive:     0,
		MetricCDPTotal:        0,
		MetricInventoryTotal:  0,
	}
	for _, it := range items {
		cmd := strings.ToLower(strings.TrimSpace(it.Command))
		switch {
		case strings.Contains(cmd, "show interfaces status") && len(it.Headers) > 0:
			countInterfaces(it, m)
		case strings.Contains(cmd, "show vlan brief"):
			active := activeVlansFromTable(it)
			if len(active) == 0 && it.Raw != "" {
				active = activeVlansFromRaw(it.Raw)
			}
			m[MetricVlansActive] = float64(len(active))
		case strings.Contains(cmd, "cdp neighbors"):
			m[MetricCDPTotal] = maxf(m[MetricCDPTotal], float64(len(it.Rows)))
		case strings.Contains(cmd, "show inventory"):
			m[MetricInventoryTotal] = maxf(m[MetricInventoryTotal], float64(len(it.Rows)))
		}
	}
	return m
}

func countInterfaces(it model.CommandResult, m map[string]float64) {
	portIdx := headerIndex(it.Headers, "port")
	statusIdx := headerIndex(it.Headers, "status")
	for _, row := range it.Rows {
		if portIdx >= 0 && portIdx < len(row) {
			port := strings.ToLower(strings.TrimSpace(row[portIdx]))
			if hasAnyPrefix(port, logicalPortPrefixes) {
				continue
			}
		}
		m[MetricInterfacesTotal]++
		switch strings.ToLower(strings.TrimSpace(model.Cell(row, statusIdx))) {
		case "connected", "up":
			m[MetricInterfacesUp]++
		default:
			m[MetricInterfacesDown]++
		}
	}
}

// activeVlansFromTable 状态列包含 active 的 VLAN；没有状态列时全部视为 active
func activeVlansFromTable(it model.CommandResult) map[string]struct{} {
	out := map[string]struct{}{}
	if len(it.Headers) == 0 {
		return out
	}
	vIdx := vlanColumn.Index(it.Headers)
	sIdx := statusColumn.Index(it.Headers)
	for _, row := range it.Rows {
		vid := strings.TrimSpace(model.Cell(row, vIdx))
		st := strings.ToLower(strings.TrimSpace(model.Cell(row, sIdx)))
		if !isNumber(vid) {
			continue
		}
		if sIdx < 0 || strings.Contains(st, "active") {
			out[vid] = struct{}{}
		}
	}
	return out
}

func activeVlansFromRaw(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, ln := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if m := activeVlanLine.FindStringSubmatch(ln); m != nil {
			out[m[1]] = struct{}{}
		}
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
