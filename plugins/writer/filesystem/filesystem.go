package filesystem

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dtsmerge/pkg/contract"
)

const (
	defaultFileMode os.FileMode = 0o644
	defaultDirMode  os.FileMode = 0o755
	defaultBufSize              = 64 * 1024
)

// Options 为 fs writer 的选项（options.writer）。
type Options struct {
	// OutputDir 缺省取顶层 output.dir。
	OutputDir string `yaml:"output_dir"`
	// Atomic 缺省为 true：同目录临时文件写完后 rename 覆盖目标。
	Atomic   *bool       `yaml:"atomic"`
	PermFile os.FileMode `yaml:"perm_file"` // 0 → 0644
	PermDir  os.FileMode `yaml:"perm_dir"`  // 0 → 0755
	BufSize  int         `yaml:"buf_size"`
}

// Writer 把产物写到输出目录下；产物 ID 是相对该目录的斜杠路径。
type Writer struct {
	root     string
	atomic   bool
	fileMode os.FileMode
	dirMode  os.FileMode
	bufSize  int
}

var (
	_ contract.Writer  = (*Writer)(nil)
	_ contract.Locator = (*Writer)(nil)
)

// New 校验选项并填入缺省值。
func New(opts *Options) (*Writer, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("writer: output_dir required: %w", os.ErrInvalid)
	}
	w := &Writer{
		root:     opts.OutputDir,
		atomic:   opts.Atomic == nil || *opts.Atomic,
		fileMode: cmp.Or(opts.PermFile, defaultFileMode),
		dirMode:  cmp.Or(opts.PermDir, defaultDirMode),
		bufSize:  cmp.Or(opts.BufSize, defaultBufSize),
	}
	if w.bufSize < 0 {
		w.bufSize = defaultBufSize
	}
	return w, nil
}

// Locate 把产物 ID 解析为磁盘路径，不访问文件系统。
// ID 必须留在输出目录内：空、"."、绝对路径、带卷名或以 .. 逃逸均返回 ErrPathInvalid。
func (w *Writer) Locate(id contract.ArtifactID) (string, error) {
	rel := filepath.FromSlash(string(id))
	if !filepath.IsLocal(rel) || filepath.Clean(rel) == "." {
		return "", fmt.Errorf("%w: %q must name a file inside %s", contract.ErrPathInvalid, id, w.root)
	}
	return filepath.Join(w.root, rel), nil
}

// Write 写入 r 的全部内容。原子模式下失败不会留下半成品，目标保持旧内容。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.Locate(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.dirMode); err != nil {
		return err
	}
	f, finish, err := w.open(dest)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, w.bufSize)
	_, err = io.Copy(bw, ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = bw.Flush()
	}
	return finish(err)
}

// open 返回写入句柄与收尾函数；收尾函数接收写入阶段的错误并负责关闭。
func (w *Writer) open(dest string) (*os.File, func(error) error, error) {
	if !w.atomic {
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.fileMode)
		if err != nil {
			return nil, nil, err
		}
		return f, func(werr error) error { return errors.Join(werr, f.Close()) }, nil
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, nil, err
	}
	_ = tmp.Chmod(w.fileMode)
	finish := func(werr error) error {
		if werr == nil {
			werr = tmp.Sync()
		}
		if cerr := tmp.Close(); werr == nil {
			werr = cerr
		}
		if werr == nil {
			// rename 在 POSIX 与 Windows 上都会替换已存在的目标
			werr = os.Rename(tmp.Name(), dest)
		}
		if werr != nil {
			_ = os.Remove(tmp.Name())
			return werr
		}
		_ = syncDir(dir)
		return nil
	}
	return tmp, finish, nil
}

// ctxReader 每次 Read 前检查取消，大文件拷贝可被中断。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
