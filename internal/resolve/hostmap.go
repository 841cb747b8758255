package resolve

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// hostMapFile 主机映射文件结构，兼容平铺写法与 hosts: 分组写法
type hostMapFile struct {
	Hosts map[string]string `yaml:"hosts"`
}

// LoadHostMap 读取 YAML 主机映射（邻居名 → 地址）；path 为空返回空映射
func LoadHostMap(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host map: %w", err)
	}
	return ParseHostMap(data)
}

// ParseHostMap 解析主机映射内容
func ParseHostMap(data []byte) (map[string]string, error) {
	var grouped hostMapFile
	if err := yaml.Unmarshal(data, &grouped); err == nil && len(grouped.Hosts) > 0 {
		return trimMap(grouped.Hosts), nil
	}
	flat := map[string]string{}
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse host map: %w", err)
	}
	return trimMap(flat), nil
}

func trimMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
