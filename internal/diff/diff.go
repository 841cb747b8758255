// Package diff 比较同一设备的两份快照，输出 VLAN、接口、聚合口、Trunk 与邻居的变化
package diff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/table"
)

// VlanDelta VLAN 增删
type VlanDelta struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// InterfaceDelta 接口状态或接入 VLAN 变化
type InterfaceDelta struct {
	Interface  string `json:"interface"`
	StatusFrom string `json:"status_from"`
	StatusTo   string `json:"status_to"`
	VlanFrom   string `json:"vlan_from"`
	VlanTo     string `json:"vlan_to"`
}

// PortChannelDelta 聚合口状态或成员变化
type PortChannelDelta struct {
	Name        string `json:"po"`
	StateFrom   string `json:"state_from"`
	StateTo     string `json:"state_to"`
	MembersFrom string `json:"members_from"`
	MembersTo   string `json:"members_to"`
}

// TrunkDelta Trunk 的 native 或 allowed VLAN 变化
type TrunkDelta struct {
	Interface   string `json:"interface"`
	NativeFrom  string `json:"native_from"`
	NativeTo    string `json:"native_to"`
	AllowedFrom string `json:"allowed_from"`
	AllowedTo   string `json:"allowed_to"`
}

// NeighborRef 一条邻接关系
type NeighborRef struct {
	Neighbor   string `json:"neighbor"`
	LocalIf    string `json:"local_if"`
	NeighborIf string `json:"neighbor_if"`
	Protocol   string `json:"proto"`
}

// NeighborDelta 邻居增删
type NeighborDelta struct {
	Added   []NeighborRef `json:"added"`
	Removed []NeighborRef `json:"removed"`
}

// Report 各领域的变化
type Report struct {
	Vlans        VlanDelta          `json:"vlans"`
	Interfaces   []InterfaceDelta   `json:"interfaces"`
	PortChannels []PortChannelDelta `json:"portchannels"`
	Trunks       []TrunkDelta       `json:"trunks"`
	Neighbors    NeighborDelta      `json:"neighbors"`
}

// Empty 所有领域均无变化
func (r Report) Empty() bool {
	return len(r.Vlans.Added) == 0 && len(r.Vlans.Removed) == 0 &&
		len(r.Interfaces) == 0 && len(r.PortChannels) == 0 && len(r.Trunks) == 0 &&
		len(r.Neighbors.Added) == 0 && len(r.Neighbors.Removed) == 0
}

// Compare 比较 prev 与 curr；prev 为 nil 时视为没有任何数据
func Compare(prev, curr *model.Snapshot) Report {
	var a, b []model.CommandResult
	if prev != nil {
		a = prev.Items
	}
	if curr != nil {
		b = curr.Items
	}
	return Report{
		Vlans:        compareVlans(a, b),
		Interfaces:   compareInterfaces(a, b),
		PortChannels: comparePortChannels(a, b),
		Trunks:       compareTrunks(a, b),
		Neighbors:    compareNeighbors(a, b),
	}
}

// records 命令名包含 substr 的第一张表的字段映射
func records(items []model.CommandResult, substr string) []map[string]string {
	it, ok := model.FindItem(items, substr)
	if !ok {
		return nil
	}
	return table.Records(it)
}

// ---- VLAN ----

func vlanSet(items []model.CommandResult) map[string]struct{} {
	out := map[string]struct{}{}
	it, ok := model.FindItem(items, cmdVlanBrief)
	if !ok || len(it.Headers) == 0 {
		return out
	}
	for _, row := range it.Rows {
		f := table.Fields(it.Headers, row)
		v := table.Pick(f, vlanKeys...)
		if v == "" {
			// 没有 VLAN 列时取第一个小于 4096 的数字列
			for i := range it.Headers {
				cell := strings.TrimSpace(model.Cell(row, i))
				if n, err := strconv.Atoi(cell); err == nil && isDigits(cell) && n < 4096 {
					v = cell
					break
				}
			}
		}
		if isDigits(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

func compareVlans(a, b []model.CommandResult) VlanDelta {
	before, after := vlanSet(a), vlanSet(b)
	d := VlanDelta{Added: []string{}, Removed: []string{}}
	for v := range after {
		if _, ok := before[v]; !ok {
			d.Added = append(d.Added, v)
		}
	}
	for v := range before {
		if _, ok := after[v]; !ok {
			d.Removed = append(d.Removed, v)
		}
	}
	sortVlans(d.Added)
	sortVlans(d.Removed)
	return d
}

// ---- 接口 ----

type ifaceAttrs struct {
	status string
	vlan   string
}

func interfaceMap(items []model.CommandResult) map[string]ifaceAttrs {
	m := map[string]ifaceAttrs{}
	for _, f := range records(items, cmdInterfacesStatus) {
		name := CanonicalInterface(table.Pick(f, interfaceKeys...))
		if name == "" {
			continue
		}
		m[name] = ifaceAttrs{
			status: strings.ToLower(table.Pick(f, interfaceStatusKeys...)),
			vlan:   table.Pick(f, interfaceVlanKeys...),
		}
	}
	return m
}

func compareInterfaces(a, b []model.CommandResult) []InterfaceDelta {
	before, after := interfaceMap(a), interfaceMap(b)
	out := []InterfaceDelta{}
	for _, k := range unionKeys(before, after) {
		x, y := before[k], after[k]
		if x == y {
			continue
		}
		out = append(out, InterfaceDelta{
			Interface:  k,
			StatusFrom: x.status,
			StatusTo:   y.status,
			VlanFrom:   x.vlan,
			VlanTo:     y.vlan,
		})
	}
	return out
}

// ---- 聚合口 ----

type poAttrs struct {
	state   string
	members string
}

func portChannelMap(items []model.CommandResult) map[string]poAttrs {
	m := map[string]poAttrs{}
	for _, f := range records(items, cmdEtherchannel) {
		name := CanonicalInterface(table.Pick(f, portChannelKeys...))
		if name == "" {
			continue
		}
		m[name] = poAttrs{
			state:   table.Pick(f, portChannelStateKeys...),
			members: NormalizeMembers(table.Pick(f, portChannelMemberKeys...)),
		}
	}
	return m
}

// NormalizeMembers 成员接口列表归一为排序去重后的 "a, b" 形式
func NormalizeMembers(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	s = strings.ReplaceAll(s, ";", ",")
	seen := map[string]struct{}{}
	var toks []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part == "" {
			continue
		}
		part = CanonicalInterface(part)
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		toks = append(toks, part)
	}
	sort.Strings(toks)
	return strings.Join(toks, ", ")
}

func comparePortChannels(a, b []model.CommandResult) []PortChannelDelta {
	before, after := portChannelMap(a), portChannelMap(b)
	out := []PortChannelDelta{}
	for _, k := range unionKeys(before, after) {
		x, y := before[k], after[k]
		if x == y {
			continue
		}
		out = append(out, PortChannelDelta{
			Name:        k,
			StateFrom:   x.state,
			StateTo:     y.state,
			MembersFrom: x.members,
			MembersTo:   y.members,
		})
	}
	return out
}

// ---- Trunk ----

type trunkAttrs struct {
	native  string
	allowed string
}

func trunkMap(items []model.CommandResult) map[string]trunkAttrs {
	m := map[string]trunkAttrs{}
	for _, f := range records(items, cmdInterfacesTrunk) {
		name := CanonicalInterface(table.Pick(f, trunkKeys...))
		if name == "" {
			continue
		}
		m[name] = trunkAttrs{
			native:  table.Pick(f, trunkNativeKeys...),
			allowed: strings.Join(ExpandRange(table.Pick(f, trunkAllowedKeys...)), ", "),
		}
	}
	return m
}

func compareTrunks(a, b []model.CommandResult) []TrunkDelta {
	before, after := trunkMap(a), trunkMap(b)
	out := []TrunkDelta{}
	for _, k := range unionKeys(before, after) {
		x, y := before[k], after[k]
		if x == y {
			continue
		}
		out = append(out, TrunkDelta{
			Interface:   k,
			NativeFrom:  x.native,
			NativeTo:    y.native,
			AllowedFrom: x.allowed,
			AllowedTo:   y.allowed,
		})
	}
	return out
}

// ---- 邻居 ----

type neighborKey struct {
	name string
	port string
}

func neighborRows(recs []map[string]string, proto string) []NeighborRef {
	var out []NeighborRef
	for _, f := range recs {
		name := table.Pick(f, neighborNameKeys...)
		if name == "" {
			continue
		}
		out = append(out, NeighborRef{
			Neighbor:   name,
			LocalIf:    CanonicalInterface(table.Pick(f, neighborLocalIfKeys...)),
			NeighborIf: CanonicalInterface(table.Pick(f, neighborRemoteIfKeys...)),
			Protocol:   proto,
		})
	}
	return out
}

// lldpRecords 优先 LLDP 详情表，为空时使用 show lldp neighbors
func lldpRecords(items []model.CommandResult) []map[string]string {
	if recs := records(items, cmdLLDPDetail); len(recs) > 0 {
		return recs
	}
	for _, it := range items {
		cmd := strings.ToLower(it.Command)
		if strings.Contains(cmd, cmdLLDP) && !strings.Contains(cmd, "detail") {
			return table.Records(it)
		}
	}
	return nil
}

// Neighbors 合并后的邻居列表，按邻居名与对端端口排序
func Neighbors(items []model.CommandResult) []NeighborRef {
	merged := mergeNeighbors(items)
	out := make([]NeighborRef, 0, len(merged))
	for _, k := range sortedNeighborKeys(merged) {
		out = append(out, merged[k])
	}
	return out
}

// mergeNeighbors 按 (邻居名, 对端端口) 合并 CDP 与 LLDP 条目，补齐缺失的本地接口
func mergeNeighbors(items []model.CommandResult) map[neighborKey]NeighborRef {
	rows := neighborRows(records(items, cmdCDPDetail), "CDP")
	rows = append(rows, neighborRows(lldpRecords(items), "LLDP")...)

	merged := map[neighborKey]NeighborRef{}
	for _, r := range rows {
		k := neighborKey{name: strings.ToLower(r.Neighbor), port: strings.ToLower(r.NeighborIf)}
		cur, ok := merged[k]
		if !ok {
			merged[k] = r
			continue
		}
		if cur.LocalIf == "" && r.LocalIf != "" {
			cur.LocalIf = r.LocalIf
			merged[k] = cur
		}
	}
	return merged
}

func compareNeighbors(a, b []model.CommandResult) NeighborDelta {
	before, after := mergeNeighbors(a), mergeNeighbors(b)
	d := NeighborDelta{Added: []NeighborRef{}, Removed: []NeighborRef{}}
	for _, k := range sortedNeighborKeys(after) {
		if _, ok := before[k]; !ok {
			d.Added = append(d.Added, after[k])
		}
	}
	for _, k := range sortedNeighborKeys(before) {
		if _, ok := after[k]; !ok {
			d.Removed = append(d.Removed, before[k])
		}
	}
	return d
}

func sortedNeighborKeys(m map[neighborKey]NeighborRef) []neighborKey {
	keys := make([]neighborKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].port < keys[j].port
	})
	return keys
}

// ---- 公共 ----

// ExpandRange 展开 VLAN 范围文本，如 "10-12,20" → [10 11 12 20]；"none" 与空串返回空
func ExpandRange(s string) []string {
	s = strings.Join(strings.Fields(s), "")
	if s == "" || strings.EqualFold(s, "none") {
		return []string{}
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		if isRange && isDigits(lo) && isDigits(hi) {
			a, _ := strconv.Atoi(lo)
			b, _ := strconv.Atoi(hi)
			for n := a; n <= b; n++ {
				add(strconv.Itoa(n))
			}
			continue
		}
		add(part)
	}
	sortVlans(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// sortVlans 全部为数字时按数值排序，否则按字典序
func sortVlans(v []string) {
	numeric := true
	for _, s := range v {
		if !isDigits(s) {
			numeric = false
			break
		}
	}
	if !numeric {
		sort.Strings(v)
		return
	}
	sort.Slice(v, func(i, j int) bool {
		a, _ := strconv.Atoi(v[i])
		b, _ := strconv.Atoi(v[j])
		return a < b
	})
}

func isDigits(s string) bool {
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

func unionKeys[T any](a, b map[string]T) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
