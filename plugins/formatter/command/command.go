package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dtsmerge/pkg/contract"
)

// Placeholder 在参数中被替换为待格式化文件路径。
const Placeholder = "{file}"

// Options 为外部格式化命令配置。
type Options struct {
	// Command: argv 形式的命令；默认 ["npx", "prettier", "--write", "{file}"]。
	// 不含占位符时路径追加为最后一个参数。
	Command []string `yaml:"command"`
	// TimeoutMS: 超时（毫秒）；<=0 表示默认 60s。
	TimeoutMS int `yaml:"timeout_ms"`
	// Dir: 工作目录；为空时继承当前目录。
	Dir string `yaml:"dir"`
}

// Formatter 调用外部进程原地格式化输出文件，等待进程退出后返回。
type Formatter struct {
	argv    []string
	timeout time.Duration
	dir     string
}

var _ contract.Formatter = (*Formatter)(nil)

func New(opts *Options) (*Formatter, error) {
	if opts == nil {
		opts = &Options{}
	}
	argv := opts.Command
	if len(argv) == 0 {
		argv = []string{"npx", "prettier", "--write", Placeholder}
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("formatter: empty command")
	}
	to := time.Duration(opts.TimeoutMS) * time.Millisecond
	if to <= 0 {
		to = 60 * time.Second
	}
	return &Formatter{argv: append([]string(nil), argv...), timeout: to, dir: opts.Dir}, nil
}

// Args 返回针对 path 展开后的 argv。
func (f *Formatter) Args(path string) []string {
	out := make([]string, 0, len(f.argv)+1)
	replaced := false
	for _, a := range f.argv {
		if strings.Contains(a, Placeholder) {
			a = strings.ReplaceAll(a, Placeholder, path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

// Format 运行命令并返回合并后的 stdout/stderr。
// 非零退出、超时或启动失败均包装为 ErrFormatFailed。
func (f *Formatter) Format(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := f.Args(path)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = f.dir
	// 子进程（如 npx 派生的 node）可能继续持有输出管道
	cmd.WaitDelay = 2 * time.Second
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("%w: %s timed out after %s: %w", contract.ErrFormatFailed, args[0], f.timeout, err)
		}
		return out, fmt.Errorf("%w: %s: %w", contract.ErrFormatFailed, args[0], err)
	}
	return out, nil
}
