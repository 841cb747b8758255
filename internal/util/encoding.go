package util

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// deviceEncodings 设备回显常见的非 UTF-8 编码，按尝试顺序排列
// 中文描述与横幅多为 GB18030/GBK，其次 Big5，西文终端为 Windows-1252
var deviceEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
	charmap.Windows1252,
}

// DeviceOutput 将一条命令回显转为 UTF-8 文本
// 已是 UTF-8 时原样保留；去掉 BOM 与 NUL 填充，避免进入解析与快照
func DeviceOutput(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	if !utf8.ValidString(raw) {
		text = decodeLegacy([]byte(raw))
	}
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.ReplaceAll(text, "\x00", "")
}

// decodeLegacy 依次尝试 deviceEncodings，全部失败时返回原始字节
func decodeLegacy(b []byte) string {
	for _, enc := range deviceEncodings {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
