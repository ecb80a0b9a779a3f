package contract

import (
	"context"
	"io"
)

// Merger: 将有序片段合并为单一声明文档。
// 约束：
//  1. 严格按入参顺序拼接，不重排；
//  2. 输出总以固定的命名空间开头样板开始，以收尾样板（含全局变量声明）结束，片段为空亦然；
//  3. 同名声明冲突时快速失败（ErrDuplicateDecl），允许的合并种类除外；
//  4. 纯函数：相同输入产出逐字节相同的输出。
type Merger interface {
	Merge(ctx context.Context, frags []Fragment) (io.Reader, MergeStats, error)
}
