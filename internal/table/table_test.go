package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

func TestAliasesIndex(t *testing.T) {
	a := Aliases{
		Exact:    []string{"mgmt_address", "management_ip"},
		Contains: []string{"ip address"},
	}

	// 测试用例1：精确匹配忽略大小写、空格与下划线
	assert.Equal(t, 1, a.Index([]string{"Device ID", "Management IP"}))

	// 测试用例2：精确候选按顺序优先
	assert.Equal(t, 2, a.Index([]string{"management_ip", "x", "MGMT Address"}))

	// 测试用例3：退化为子串匹配
	assert.Equal(t, 0, a.Index([]string{"Entry IP Address", "platform"}))

	// 测试用例4：找不到
	assert.Equal(t, -1, a.Index([]string{"platform"}))
	assert.Equal(t, -1, a.Index(nil))
}

func TestFieldsShortRow(t *testing.T) {
	headers := []string{"Port", "Native-Vlan", "Allowed Vlans"}
	m := Fields(headers, []string{"Gi1/0/1", " 10 "})

	assert.Equal(t, "Gi1/0/1", m["port"])
	assert.Equal(t, "10", m["native_vlan"])
	v, ok := m["allowed_vlans"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestRecordsAndPick(t *testing.T) {
	item := model.CommandResult{
		Command: "show vlan brief",
		Headers: []string{"VLAN_ID", "NAME"},
		Rows:    [][]string{{"10", "users"}, {"20"}},
	}
	recs := Records(item)
	assert.Len(t, recs, 2)
	assert.Equal(t, "10", Pick(recs[0], "vlan", "vlan_id"))
	assert.Equal(t, "", Pick(recs[1], "name"))

	assert.Nil(t, Records(model.CommandResult{Command: "show clock", Raw: "10:00"}))
}
