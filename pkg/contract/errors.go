package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrFragmentInvalid: 片段不是恰好一个合法的包裹块（语法错误、多余顶层内容等）。
	ErrFragmentInvalid = errors.New("fragment invalid")
	// ErrNamespaceMismatch: 片段声明的命名空间与配置不一致。
	ErrNamespaceMismatch = errors.New("namespace mismatch")
	// ErrDuplicateDecl: 不同片段声明了同名成员。
	ErrDuplicateDecl = errors.New("duplicate declaration")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrFormatFailed: 外部格式化失败（对流水线非致命）。
	ErrFormatFailed = errors.New("format failed")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
