package diag

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"

	"dtsmerge/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeParse     Code = "parse"
	CodeConflict  Code = "conflict"
	CodeInvariant Code = "invariant"
	CodeFormat    Code = "format"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	// CodeConfig 仅由入口使用（配置与装配失败）。
	CodeConfig    Code = "config"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 格式化超时同样携带 DeadlineExceeded，需先于取消判定
	if errors.Is(err, contract.ErrFormatFailed) {
		return CodeFormat
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrDuplicateDecl) {
		return CodeConflict
	}
	if errors.Is(err, contract.ErrFragmentInvalid) || errors.Is(err, contract.ErrNamespaceMismatch) {
		return CodeParse
	}
	var xerr *exec.ExitError
	if errors.As(err, &xerr) {
		return CodeFormat
	}
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
