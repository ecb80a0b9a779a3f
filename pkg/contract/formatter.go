package contract

import "context"

// Formatter: 对已写出的文件做原地格式化（通常为外部进程）。
// 约束：
//  1. 同步返回：进程退出后才返回；
//  2. 返回进程的合并输出，便于日志与终端提示；
//  3. 失败对流水线非致命，由调用方记录并降级。
type Formatter interface {
	Format(ctx context.Context, path string) (output string, err error)
}
