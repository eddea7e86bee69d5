package storage

import (
	"path"
	"strings"
	"unicode"
)

const (
	// ImageNamespace 与 DocumentNamespace 在对象存储中相互隔离。
	ImageNamespace    = "images"
	DocumentNamespace = "documents"
)

// SanitizeSegment 将任意字符串转换为可安全用作对象路径片段的形式。
// 空字符串转换为 "anonymous"。
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "anonymous"
	}
	return out
}

// ObjectKey 组合命名空间、发送者目录和后续路径片段，得到对象存储中的 key。
// 每个片段单独清洗，片段中的 "/" 不会产生额外的目录层级。
func ObjectKey(namespace, sender string, segments ...string) string {
	parts := []string{namespace, SanitizeSegment(sender)}
	for _, seg := range segments {
		parts = append(parts, SanitizeSegment(seg))
	}
	return path.Join(parts...)
}
