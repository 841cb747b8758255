package cisco_ios

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// fallbackParser 正则解析器，返回表头与行；无法识别时返回空
type fallbackParser func(raw string) ([]string, [][]string)

// fallbackFor 按命令子串选择回退解析器
func fallbackFor(cmd string) fallbackParser {
	switch {
	case strings.Contains(cmd, "show interfaces status"):
		return parseInterfacesStatus
	case strings.Contains(cmd, "show vlan brief"):
		return parseVlanBrief
	case strings.Contains(cmd, "show inventory"):
		return parseInventory
	case strings.Contains(cmd, "cdp neighbors detail"):
		return parseCDPNeighborsDetail
	case strings.Contains(cmd, "show version"):
		return parseVersion
	case strings.Contains(cmd, "show spanning-tree"):
		return parseSpanningTree
	case strings.Contains(cmd, "show etherchannel") && strings.Contains(cmd, "summary"):
		return parseEtherchannelSummary
	case strings.Contains(cmd, "show interfaces trunk"):
		return parseInterfacesTrunk
	}
	return nil
}

var (
	statusHeaderRe = regexp.MustCompile(`\bPort\b.*\bStatus\b.*\bVlan\b`)
	promptLineRe   = regexp.MustCompile(`^\S+#\s*$`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)
	listSplitRe    = regexp.MustCompile(`[,\s]+`)
)

var statusHeaders = []string{"Port", "Name", "Status", "Vlan", "Duplex", "Speed", "Type"}

var statusColumnRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(statusHeaders))
	for i, k := range statusHeaders {
		out[i] = regexp.MustCompile(`\b` + k + `\b`)
	}
	return out
}()

func nonEmptyLines(raw string) []string {
	var out []string
	for _, ln := range strings.Split(raw, "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}

func collapse(s string) string {
	return multiSpaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

func joinList(s string) string {
	var toks []string
	for _, t := range listSplitRe.Split(s, -1) {
		if t = strings.TrimSpace(t); t != "" {
			toks = append(toks, t)
		}
	}
	return strings.Join(toks, ", ")
}

// parseInterfacesStatus 按表头列位置切分；缺少列名时按空白拆分
func parseInterfacesStatus(raw string) ([]string, [][]string) {
	lines := nonEmptyLines(raw)
	hdr := -1
	for i, ln := range lines {
		if statusHeaderRe.MatchString(ln) {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return nil, nil
	}
	headers := append([]string(nil), statusHeaders...)

	starts := make([]int, 0, len(statusHeaders))
	positional := true
	for _, re := range statusColumnRes {
		loc := re.FindStringIndex(lines[hdr])
		if loc == nil {
			positional = false
			break
		}
		starts = append(starts, loc[0])
	}

	var rows [][]string
	if !positional {
		for _, ln := range lines[hdr+1:] {
			if promptLineRe.MatchString(ln) {
				break
			}
			parts := strings.Fields(ln)
			if len(parts) < 5 {
				continue
			}
			middle := parts[1 : len(parts)-3]
			if len(middle) < 2 {
				continue
			}
			rows = append(rows, []string{
				parts[0],
				strings.Join(middle[:len(middle)-2], " "),
				middle[len(middle)-2],
				middle[len(middle)-1],
				parts[len(parts)-3],
				parts[len(parts)-2],
				parts[len(parts)-1],
			})
		}
		return headers, rows
	}

	sort.Ints(starts)
	slice := func(line string, i int) string {
		a := starts[i]
		if a >= len(line) {
			return ""
		}
		if i+1 < len(starts) && starts[i+1] < len(line) {
			return line[a:starts[i+1]]
		}
		return line[a:]
	}
	for _, ln := range lines[hdr+1:] {
		if promptLineRe.MatchString(ln) {
			break
		}
		if strings.Trim(strings.TrimSpace(ln), "-") == "" {
			continue
		}
		vals := make([]string, len(starts))
		for i := range starts {
			vals[i] = collapse(slice(ln, i))
		}
		if vals[0] == "" {
			continue
		}
		rows = append(rows, vals)
	}
	return headers, rows
}

var (
	vlanStartRe    = regexp.MustCompile(`(?i)\bVLAN\s+Name\s+Status\s+Ports`)
	vlanRowRe      = regexp.MustCompile(`^\s*(\d+)\s+(\S.*?)\s{2,}(\S+)\s*(.*)$`)
	vlanContinueRe = regexp.MustCompile(`^\s{10,}\S`)
	dashesRe       = regexp.MustCompile(`^-{3,}`)
)

// parseVlanBrief 处理 Ports 列的折行
func parseVlanBrief(raw string) ([]string, [][]string) {
	lines := strings.Split(raw, "\n")
	start := -1
	for i, ln := range lines {
		if vlanStartRe.MatchString(ln) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	var rows [][]string
	var cur []string
	for _, ln := range lines[start:] {
		ln = strings.TrimRight(ln, " \t")
		if strings.TrimSpace(ln) == "" || dashesRe.MatchString(ln) {
			continue
		}
		if m := vlanRowRe.FindStringSubmatch(ln); m != nil {
			if cur != nil {
				rows = append(rows, cur)
			}
			cur = []string{m[1], strings.TrimSpace(m[2]), m[3], strings.TrimSpace(m[4])}
			continue
		}
		if cur != nil && vlanContinueRe.MatchString(ln) {
			cur[3] = strings.TrimSpace(cur[3] + " " + strings.TrimSpace(ln))
		}
	}
	if cur != nil {
		rows = append(rows, cur)
	}
	for _, r := range rows {
		r[3] = joinList(r[3])
	}
	return []string{"vlan_id", "name", "status", "interfaces"}, rows
}

var (
	blockSplitRe = regexp.MustCompile(`\n\s*\n`)
	invNameRe    = regexp.MustCompile(`(?i)NAME:\s*"([^"]*)",\s*DESCR:\s*"([^"]*)"`)
	invPIDRe     = regexp.MustCompile(`(?i)PID:\s*([^\s,]+).*?VID:\s*([^\s,]+).*?SN:\s*([^\s,]+)`)
)

func parseInventory(raw string) ([]string, [][]string) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var rows [][]string
	for _, b := range blockSplitRe.Split(strings.TrimSpace(raw), -1) {
		row := make([]string, 5)
		if m := invNameRe.FindStringSubmatch(b); m != nil {
			row[0], row[1] = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
		if m := invPIDRe.FindStringSubmatch(b); m != nil {
			row[2], row[3], row[4] = m[1], m[2], m[3]
		}
		if strings.Join(row, "") != "" {
			rows = append(rows, row)
		}
	}
	return []string{"name", "descr", "pid", "vid", "serial"}, rows
}

var (
	cdpSplitRe     = regexp.MustCompile(`-{5,}\s*`)
	cdpDeviceRe    = regexp.MustCompile(`(?i)Device\s*ID\s*:\s*(.+)`)
	cdpIPRe        = regexp.MustCompile(`(?i)IP address:\s*([0-9.]+)`)
	cdpPlatformRe  = regexp.MustCompile(`(?i)Platform:\s*(.+?),\s*Capabilities:\s*(.+)`)
	cdpInterfaceRe = regexp.MustCompile(`(?i)Interface:\s*([^,]+),\s*Port ID.*?:\s*([^\n]+)`)
	cdpHoldtimeRe  = regexp.MustCompile(`(?i)Holdtime\s*:\s*(\d+)\s*sec`)
	cdpVersionRe   = regexp.MustCompile(`(?is)Version\s*:\s*(.+?)(?:\n\s*\n|$)`)
)

// parseCDPNeighborsDetail 以分隔线切块；地址列名为 management_ip
func parseCDPNeighborsDetail(raw string) ([]string, [][]string) {
	headers := []string{
		"device_id", "management_ip", "platform", "capabilities",
		"local_interface", "port_id", "holdtime", "version",
	}
	var rows [][]string
	for _, ch := range cdpSplitRe.Split(raw, -1) {
		if strings.TrimSpace(ch) == "" {
			continue
		}
		row := make([]string, len(headers))
		if m := cdpDeviceRe.FindStringSubmatch(ch); m != nil {
			row[0] = strings.TrimSpace(m[1])
		}
		if m := cdpIPRe.FindStringSubmatch(ch); m != nil {
			row[1] = m[1]
		}
		if m := cdpPlatformRe.FindStringSubmatch(ch); m != nil {
			row[2], row[3] = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
		if m := cdpInterfaceRe.FindStringSubmatch(ch); m != nil {
			row[4], row[5] = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
		if m := cdpHoldtimeRe.FindStringSubmatch(ch); m != nil {
			row[6] = m[1]
		}
		if m := cdpVersionRe.FindStringSubmatch(ch); m != nil {
			row[7] = strings.TrimSpace(m[1])
		}
		if strings.Join(row, "") != "" {
			rows = append(rows, row)
		}
	}
	return headers, rows
}

var (
	verVersionRe  = regexp.MustCompile(`(?i)Version\s+([A-Za-z0-9.()-]+)`)
	verPlatformRe = regexp.MustCompile(`(?i)cisco\s+([A-Z0-9-]+)\s*\(`)
	verSerialRe   = regexp.MustCompile(`(?i)System serial number\s*:\s*([A-Za-z0-9]+)`)
	verUptimeRe   = regexp.MustCompile(`(?im)^\s*(\S+)\s+uptime\s+is\s+(.+?)\s*$`)
)

// parseVersion 单行结果；hostname 取自 uptime 行
func parseVersion(raw string) ([]string, [][]string) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	row := make([]string, 5)
	if m := verUptimeRe.FindStringSubmatch(raw); m != nil {
		row[0], row[4] = m[1], m[2]
	}
	if m := verVersionRe.FindStringSubmatch(raw); m != nil {
		row[1] = m[1]
	}
	if m := verPlatformRe.FindStringSubmatch(raw); m != nil {
		row[2] = m[1]
	}
	if m := verSerialRe.FindStringSubmatch(raw); m != nil {
		row[3] = m[1]
	}
	return []string{"hostname", "version", "platform", "serial", "uptime"}, [][]string{row}
}

var (
	stpVlanRe = regexp.MustCompile(`(?i)^\s*VLAN\s*0*(\d+)\b`)
	stpPortRe = regexp.MustCompile(`^(\S+)\s+(\w+)\s+(\w+)\s+(\d+)\s+([\d.]+)\s+(.+?)\s*$`)
)

func parseSpanningTree(raw string) ([]string, [][]string) {
	headers := []string{"vlan", "interface", "role", "state", "cost", "port_id", "port_type"}
	var rows [][]string
	vlan := ""
	for _, ln := range strings.Split(raw, "\n") {
		if m := stpVlanRe.FindStringSubmatch(ln); m != nil {
			vlan = m[1]
			continue
		}
		m := stpPortRe.FindStringSubmatch(strings.TrimSpace(ln))
		if m == nil || vlan == "" {
			continue
		}
		rows = append(rows, []string{vlan, m[1], strings.ToLower(m[2]), strings.ToLower(m[3]), m[4], m[5], m[6]})
	}
	return headers, rows
}

var (
	ecHeaderRe   = regexp.MustCompile(`(?i)\bGroup\b.*\bPort-?Channel\b.*\bProtocol\b`)
	ecRowRe      = regexp.MustCompile(`^\s*(\d+)\s+([A-Za-z]+[0-9]+)\(([^)]+)\)\s+(\S+)\s*(.*)$`)
	ecNumberedRe = regexp.MustCompile(`^\s*\d+\s+`)
	ecSpacesRe   = regexp.MustCompile(` {2,}`)
)

// parseEtherchannelSummary 成员口折行并入上一组；状态由标志位推导
func parseEtherchannelSummary(raw string) ([]string, [][]string) {
	lines := nonEmptyLines(ecSpacesRe.ReplaceAllString(raw, " "))
	start := -1
	for i, ln := range lines {
		if ecHeaderRe.MatchString(ln) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	type entry struct{ group, po, flags, protocol, members string }
	var entries []*entry
	var cur *entry
	for _, ln := range lines[start:] {
		if m := ecRowRe.FindStringSubmatch(ln); m != nil {
			cur = &entry{group: m[1], po: m[2], flags: m[3], protocol: m[4], members: strings.TrimSpace(m[5])}
			entries = append(entries, cur)
			continue
		}
		if cur != nil && !ecNumberedRe.MatchString(ln) {
			cur.members = strings.TrimSpace(cur.members + " " + strings.TrimSpace(ln))
		}
	}

	var rows [][]string
	for _, e := range entries {
		status := "Unknown"
		flags := strings.ToUpper(e.flags)
		switch {
		case strings.Contains(flags, "U"):
			status = "Up"
		case strings.Contains(flags, "D"):
			status = "Down"
		}
		group := e.group
		if n, err := strconv.Atoi(group); err == nil {
			group = strconv.Itoa(n)
		}
		rows = append(rows, []string{group, e.po, e.protocol, status, e.flags, joinList(e.members)})
	}
	return []string{"Group", "Port-Channel", "Protocol", "Status", "Flags", "Member Ports"}, rows
}

var (
	trunkColumnsRe = regexp.MustCompile(`\s{2,}`)
	trunkListRe    = regexp.MustCompile(`^(\S+)\s{2,}(.+)$`)
)

var trunkSections = []struct{ needle, field string }{
	{"vlans allowed on trunk", "allowed_vlans"},
	{"vlans allowed and active in management domain", "allowed_active_vlans"},
	{"vlans in spanning tree forwarding state and not pruned", "stp_forwarding_not_pruned"},
}

var trunkHeaders = []string{
	"port", "mode", "encapsulation", "status", "native_vlan",
	"allowed_vlans", "allowed_active_vlans", "stp_forwarding_not_pruned",
}

// parseInterfacesTrunk 合并主表与三个 VLAN 列表段，按端口名排序
func parseInterfacesTrunk(raw string) ([]string, [][]string) {
	var lines []string
	for _, ln := range nonEmptyLines(raw) {
		lines = append(lines, strings.TrimRight(ln, " \t"))
	}
	ports := map[string]map[string]string{}
	get := func(port string) map[string]string {
		d, ok := ports[port]
		if !ok {
			d = map[string]string{"port": port}
			ports[port] = d
		}
		return d
	}

	hdr := -1
	for i, ln := range lines {
		low := strings.ToLower(ln)
		if strings.HasPrefix(low, "port") && strings.Contains(low, "mode") && strings.Contains(low, "status") {
			hdr = i
			break
		}
	}
	if hdr >= 0 {
		for _, ln := range lines[hdr+1:] {
			low := strings.ToLower(ln)
			if strings.HasPrefix(low, "port ") && strings.Contains(low, "vlans") {
				break
			}
			parts := trunkColumnsRe.Split(strings.TrimSpace(ln), -1)
			d := map[string]string{}
			switch {
			case len(parts) >= 5:
				d["mode"], d["encapsulation"], d["status"], d["native_vlan"] = parts[1], parts[2], parts[3], parts[4]
			case len(parts) == 4:
				d["mode"], d["encapsulation"], d["status"], d["native_vlan"] = parts[1], "", parts[2], parts[3]
			default:
				continue
			}
			row := get(parts[0])
			for k, v := range d {
				row[k] = v
			}
		}
	}

	field := ""
	for _, ln := range lines {
		low := strings.ToLower(ln)
		section := ""
		if strings.HasPrefix(low, "port ") {
			for _, s := range trunkSections {
				if strings.Contains(low, s.needle) {
					section = s.field
					break
				}
			}
		}
		if section != "" {
			field = section
			continue
		}
		if field == "" {
			continue
		}
		if m := trunkListRe.FindStringSubmatch(strings.TrimSpace(ln)); m != nil {
			get(m[1])[field] = strings.TrimSpace(m[2])
		}
	}

	names := make([]string, 0, len(ports))
	for p := range ports {
		names = append(names, p)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, p := range names {
		row := make([]string, len(trunkHeaders))
		for i, h := range trunkHeaders {
			row[i] = ports[p][h]
		}
		rows = append(rows, row)
	}
	return append([]string(nil), trunkHeaders...), rows
}
