package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDeviceOutput(t *testing.T) {
	assert.Equal(t, "", DeviceOutput(""))
	assert.Equal(t, "core-sw1#", DeviceOutput("core-sw1#"))
	assert.Equal(t, "Gi1/0/1 uplink", DeviceOutput("\ufeffGi1/0/1\x00 uplink"), "去掉 BOM 与 NUL")

	gbk, err := simplifiedchinese.GBK.NewEncoder().String("核心交换机 上联")
	require.NoError(t, err)
	assert.Equal(t, "核心交换机 上联", DeviceOutput(gbk))
}
