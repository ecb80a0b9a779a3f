package none

import (
	"context"

	"dtsmerge/pkg/contract"
)

// Formatter 跳过格式化。
type Formatter struct{}

var _ contract.Formatter = Formatter{}

func New() Formatter { return Formatter{} }

func (Formatter) Format(ctx context.Context, _ string) (string, error) { return "", ctx.Err() }
