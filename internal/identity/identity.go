// Package identity 从采集结果推导设备身份键，用于单次遍历内的防环判断
package identity

import (
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/table"
)

// Unknown 既无序列号也无管理地址时的身份值
const Unknown = "unknown"

var (
	versionSerial   = table.Aliases{Exact: []string{"serial"}}
	inventorySerial = table.Aliases{Exact: []string{"serial", "sn"}, Contains: []string{"serial"}}
)

// Key 设备身份
type Key struct {
	Serial            string
	ManagementAddress string
}

// Best 序列号优先，其次管理地址，否则 Unknown
func (k Key) Best() string {
	if s := strings.TrimSpace(k.Serial); s != "" {
		return s
	}
	if a := strings.TrimSpace(k.ManagementAddress); a != "" {
		return a
	}
	return Unknown
}

// Resolve 依次从 show version、show inventory 取序列号，address 为到达设备所用的地址
func Resolve(items []model.CommandResult, address string) Key {
	key := Key{ManagementAddress: strings.TrimSpace(address)}
	if it, ok := model.FindItem(items, "show version"); ok {
		key.Serial = firstValue(it, versionSerial)
	}
	if key.Serial == "" {
		if it, ok := model.FindItem(items, "show inventory"); ok {
			key.Serial = firstValue(it, inventorySerial)
		}
	}
	return key
}

func firstValue(it model.CommandResult, a table.Aliases) string {
	idx := a.Index(it.Headers)
	if idx < 0 {
		return ""
	}
	for _, row := range it.Rows {
		if v := strings.TrimSpace(model.Cell(row, idx)); v != "" {
			return v
		}
	}
	return ""
}
