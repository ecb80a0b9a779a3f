package contract

import (
	"context"
	"io"
)

// Reader: 片段源抽象（文件系统目录树）。
// 约束：
// 1) 流式读取，按文件维度回调；
// 2) FileID 稳定且去平台差异化；
// 3) 回调顺序即合并顺序，必须稳定（默认按相对路径字典序）；
// 4) 不做解析，仅提供字节流；
// 5) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}

// PathFilter: 可选能力。监听模式复用 Reader 的选择规则判断变更路径是否相关。
type PathFilter interface {
	// Relevant 判断 root 下的 path 是否为会被读取的片段文件。
	Relevant(root, path string) bool
	// SkipDir 判断目录基名是否应被跳过。
	SkipDir(name string) bool
}
