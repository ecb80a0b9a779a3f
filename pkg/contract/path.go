package contract

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// RelSlash 返回 target 相对 root 的正斜杠路径；无法求相对路径时返回规范化的 target。
func RelSlash(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return string(NormalizeFileID(target))
	}
	return string(NormalizeFileID(rel))
}
