package contract

import (
	"context"
	"io"
)

// Extractor: 将单个片段文件剥离命名空间外壳，得到内部声明文本与声明清单。
// 约束：
//  1. 片段必须恰为一个包裹块；不满足时返回 ErrFragmentInvalid（或 ErrNamespaceMismatch）；
//  2. 内部文本逐字节保留，仅移除开头标记与一个收尾花括号；
//  3. 纯计算、无内部并发、幂等。
type Extractor interface {
	Extract(ctx context.Context, fileID FileID, r io.Reader) (Fragment, error)
}
