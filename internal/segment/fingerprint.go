package segment

import (
	"crypto/md5"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText 折叠空白并做 NFC 归一化。
// 指纹必须对空白差异和 Unicode 组合形式不敏感，
// 否则框架重排产生的等价文本会被当作新内容。
func NormalizeText(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	return norm.NFC.String(collapsed)
}

// Fingerprint 由归一化文本和 DOM 路径推导稳定指纹。
// 相同指纹的分段在缓存层面视为可互换，这是信任边界而非加密保证。
func Fingerprint(text, domPath string) string {
	keyData := NormalizeText(text) + "|" + domPath
	hash := md5.Sum([]byte(keyData))
	return fmt.Sprintf("%x", hash)
}
