// Package neighbor 从 CDP/LLDP 详情表中提取邻居名称与管理地址
package neighbor

import (
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/table"
)

// Protocol 邻居来源协议
type Protocol string

const (
	ProtocolCDP  Protocol = "CDP"
	ProtocolLLDP Protocol = "LLDP"
)

const notAdvertised = "not advertised"

// Neighbor 邻接表中的一条邻居
type Neighbor struct {
	Name              string   `json:"name"`
	ManagementAddress string   `json:"management_address,omitempty"`
	Protocol          Protocol `json:"protocol"`
}

var (
	nameColumn = table.Aliases{
		Exact: []string{
			"neighbor_name", "neighbour_name", "destination_host", "device_id",
			"device", "remote_system_name", "system_name",
		},
		Contains: []string{"device id", "destination", "system name", "remote_system"},
	}
	addressColumn = table.Aliases{
		Exact: []string{
			"mgmt_address", "management_ip", "mgmt_ip", "ip_address", "management_address",
		},
		Contains: []string{"ip address", "management address", "mgmt addr"},
	}
)

// Extract 优先读取 CDP 详情表，无数据时改读 LLDP 详情表
func Extract(items []model.CommandResult) []Neighbor {
	if it, ok := model.FindItem(items, "cdp neighbors detail"); ok {
		if out := fromTable(it, ProtocolCDP); len(out) > 0 {
			return out
		}
	}
	if it, ok := model.FindItem(items, "lldp neighbors detail"); ok {
		return fromTable(it, ProtocolLLDP)
	}
	return nil
}

func fromTable(it model.CommandResult, proto Protocol) []Neighbor {
	if len(it.Headers) == 0 || len(it.Rows) == 0 {
		return nil
	}
	nameIdx := nameColumn.Index(it.Headers)
	addrIdx := addressColumn.Index(it.Headers)

	var out []Neighbor
	for _, row := range it.Rows {
		n := Neighbor{
			Name:              clean(model.Cell(row, nameIdx)),
			ManagementAddress: clean(model.Cell(row, addrIdx)),
			Protocol:          proto,
		}
		if n.Name == "" && n.ManagementAddress == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

func clean(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, notAdvertised) {
		return ""
	}
	return v
}
