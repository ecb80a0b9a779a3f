package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"dtsmerge/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size"`
	// Patterns: 片段选择的 glob（doublestar 语法，匹配相对 root 的正斜杠路径）。
	// 为空时采用默认 ["**/*.d.ts"]。
	Patterns []string `yaml:"patterns"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（基名匹配，大小写不敏感）。
	// nil 时默认 ["node_modules", ".git"]；显式空列表表示不跳过。
	ExcludeDirNames []string `yaml:"exclude_dir_names"`
	// Leading: 命中这些 glob 的片段排在最前（保持彼此的字典序），其余按字典序随后。
	Leading []string `yaml:"leading"`
}

// FileSystem 实现基于目录树的片段 Reader。
type FileSystem struct {
	bufSize  int
	patterns []string
	leading  []string
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir map[string]struct{}
}

var (
	_ contract.Reader     = (*FileSystem)(nil)
	_ contract.PathFilter = (*FileSystem)(nil)
)

// New 创建 FileSystem Reader；glob 非法时返回错误。
func New(opts *Options) (*FileSystem, error) {
	const defaultBuf = 64 * 1024
	if opts == nil {
		opts = &Options{}
	}
	b := defaultBuf
	if opts.BufSize > 0 {
		b = opts.BufSize
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**/*.d.ts"}
	}
	for _, p := range append(append([]string{}, patterns...), opts.Leading...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("reader: invalid pattern %q", p)
		}
	}
	names := opts.ExcludeDirNames
	if names == nil {
		names = []string{"node_modules", ".git"}
	}
	ex := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.Trim(strings.TrimSpace(name), "/\\")
		if name == "" {
			continue
		}
		ex[strings.ToLower(name)] = struct{}{}
	}
	return &FileSystem{bufSize: b, patterns: patterns, leading: opts.Leading, excludeDir: ex}, nil
}

// candidate 为一次遍历收集到的片段文件。
type candidate struct {
	path string // 实际打开路径
	rel  string // 相对 root 的正斜杠路径（排序与匹配键）
}

// Iterate 遍历 roots，按稳定顺序对每个片段文件调用 yield。
// 顺序：逐 root；root 内先 Leading 命中者，再其余，各自按相对路径字典序。
// 同一文件经多个 root 可达时仅产出一次。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 {
		return fmt.Errorf("%w: no source roots", contract.ErrInvariantViolation)
	}
	seen := make(map[string]struct{})
	for _, root := range roots {
		cands, err := r.collect(ctx, root)
		if err != nil {
			return err
		}
		for _, c := range r.order(cands) {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := c.path
			if abs, err := filepath.Abs(c.path); err == nil {
				key = abs
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			f, err := os.Open(c.path)
			if err != nil {
				return err
			}
			brc := newBufferedCloser(f, r.bufSize)
			if err := yield(contract.NormalizeFileID(c.path), brc); err != nil {
				_ = brc.Close()
				return err
			}
		}
	}
	return nil
}

// Relevant 判断 root 下的 path 是否会被选为片段（供监听模式复用）。
func (r *FileSystem) Relevant(root, path string) bool {
	rel := contract.RelSlash(root, path)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	segs := strings.Split(rel, "/")
	for _, s := range segs[:len(segs)-1] {
		if r.SkipDir(s) {
			return false
		}
	}
	return r.match(rel)
}

// SkipDir 判断目录基名是否在排除列表中。
func (r *FileSystem) SkipDir(name string) bool {
	_, skip := r.excludeDir[strings.ToLower(name)]
	return skip
}

func (r *FileSystem) match(rel string) bool {
	for _, p := range r.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (r *FileSystem) isLeading(rel string) bool {
	for _, p := range r.leading {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// order: 字典序后稳定分区（Leading 在前）。
func (r *FileSystem) order(cands []candidate) []candidate {
	sort.Slice(cands, func(i, j int) bool { return cands[i].rel < cands[j].rel })
	if len(r.leading) == 0 {
		return cands
	}
	out := make([]candidate, 0, len(cands))
	var rest []candidate
	for _, c := range cands {
		if r.isLeading(c.rel) {
			out = append(out, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(out, rest...)
}

func (r *FileSystem) collect(ctx context.Context, root string) ([]candidate, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	// 仅跟随到常规文件；目录符号链接不跟随（忽略）
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if t.Mode().IsRegular() {
			return []candidate{{path: root, rel: filepath.Base(root)}}, nil
		}
		return nil, nil
	}
	if info.IsDir() {
		var out []candidate
		if err := r.walkDir(ctx, root, root, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	// 显式给出的单文件 root 不受 Patterns 约束
	return []candidate{{path: root, rel: filepath.Base(root)}}, nil
}

func (r *FileSystem) walkDir(ctx context.Context, root, dir string, out *[]candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if r.SkipDir(e.Name()) {
				continue
			}
			if err := r.walkDir(ctx, root, p, out); err != nil {
				return err
			}
			continue
		}
		rel := contract.RelSlash(root, p)
		if !r.match(rel) {
			continue
		}
		// 允许指向常规文件的符号链接；目录符号链接或失效链接忽略
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil || !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			// 非常规文件（设备、管道等）跳过
			continue
		}
		*out = append(*out, candidate{path: p, rel: rel})
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
