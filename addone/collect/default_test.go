package collect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanForTextFSM(t *testing.T) {
	raw := "show vlan brief\r\n\r\nVLAN Name\r\n1    default\r\nsw1#\r\n\r\n"
	assert.Equal(t, "VLAN Name\n1    default", CleanForTextFSM(raw))

	// 非 show 开头的首行保留
	assert.Equal(t, "Port  Status\nGi1  up", CleanForTextFSM("Port  Status\nGi1  up\nsw1>"))
	assert.Equal(t, "", CleanForTextFSM(""))
	assert.Equal(t, "a\nb", CleanOutput("a\x1b[0m\rb"))
}

func TestRegistryDefault(t *testing.T) {
	p := Get("no_such_platform")
	assert.Equal(t, "default", p.Name())
	out, err := p.Parse(ParseContext{Command: "show clock"}, "12:00")
	assert.NoError(t, err)
	assert.False(t, out.Parsed())
	assert.Equal(t, "12:00", out.Raw)
	assert.Contains(t, Names(), "default")
}
