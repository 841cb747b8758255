package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

// Count 前后数量与差值
type Count struct {
	Prev  int `json:"prev"`
	Curr  int `json:"curr"`
	Delta int `json:"delta"`
}

// Summary 快照间的简要差异
type Summary struct {
	RowsDelta                map[string]Count `json:"rows_delta"`
	VlansAdded               []string         `json:"vlans_added"`
	VlansRemoved             []string         `json:"vlans_removed"`
	InterfacesConnectedDelta Count            `json:"interfaces_connected_delta"`
}

// SimpleDiff 统计每条命令的行数变化、观察到的 VLAN 增删与 connected 接口数变化
func SimpleDiff(prev, curr *model.Snapshot) Summary {
	s := Summary{RowsDelta: map[string]Count{}, VlansAdded: []string{}, VlansRemoved: []string{}}
	if prev == nil || curr == nil {
		return s
	}
	pm, cm := byCommand(prev.Items), byCommand(curr.Items)
	for cmd := range union(pm, cm) {
		p, c := len(pm[cmd].Rows), len(cm[cmd].Rows)
		s.RowsDelta[cmd] = Count{Prev: p, Curr: c, Delta: c - p}
	}

	pv, cv := observedVlans(prev.Items), observedVlans(curr.Items)
	for v := range cv {
		if _, ok := pv[v]; !ok {
			s.VlansAdded = append(s.VlansAdded, v)
		}
	}
	for v := range pv {
		if _, ok := cv[v]; !ok {
			s.VlansRemoved = append(s.VlansRemoved, v)
		}
	}
	sortNumeric(s.VlansAdded)
	sortNumeric(s.VlansRemoved)

	p := countConnected(pm["show interfaces status"])
	c := countConnected(cm["show interfaces status"])
	s.InterfacesConnectedDelta = Count{Prev: p, Curr: c, Delta: c - p}
	return s
}

func byCommand(items []model.CommandResult) map[string]model.CommandResult {
	m := make(map[string]model.CommandResult, len(items))
	for _, it := range items {
		m[strings.ToLower(strings.TrimSpace(it.Command))] = it
	}
	return m
}

func union(a, b map[string]model.CommandResult) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// observedVlans show vlan brief 与 show interfaces status 中出现的数字 VLAN
func observedVlans(items []model.CommandResult) map[string]struct{} {
	out := map[string]struct{}{}
	for _, it := range items {
		cmd := strings.ToLower(it.Command)
		if !strings.Contains(cmd, "show vlan brief") && !strings.Contains(cmd, "show interfaces status") {
			continue
		}
		idx := headerIndex(it.Headers, "vlan")
		if idx < 0 {
			idx = headerIndex(it.Headers, "vlan_id")
		}
		if idx < 0 {
			continue
		}
		for _, row := range it.Rows {
			v := strings.TrimSpace(model.Cell(row, idx))
			if isNumber(v) {
				out[v] = struct{}{}
			}
		}
	}
	return out
}

func countConnected(it model.CommandResult) int {
	idx := headerIndex(it.Headers, "status")
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range it.Rows {
		switch strings.ToLower(strings.TrimSpace(model.Cell(row, idx))) {
		case "connected", "up":
			n++
		}
	}
	return n
}

func sortNumeric(v []string) {
	sort.Slice(v, func(i, j int) bool {
		a, _ := strconv.Atoi(v[i])
		b, _ := strconv.Atoi(v[j])
		return a < b
	})
}
