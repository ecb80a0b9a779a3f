// Package watch 监听片段目录，文件变化时串行地重新构建。
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"dtsmerge/internal/diag"
	"dtsmerge/pkg/contract"
)

// InitialReason 为启动构建的触发原因。
const InitialReason = "initial"

// Options 为监听参数。
type Options struct {
	Roots []string
	// Filter 复用 Reader 的选择规则；nil 时根目录下任意文件均触发。
	Filter       contract.PathFilter
	Debounce     time.Duration
	InitialBuild bool
	Logger       *diag.Logger
	// Ready 在初始订阅完成后调用（dirs 为已订阅目录数）。
	Ready func(dirs int)
	// Done 在每次构建后调用。
	Done func(reason string, err error)
}

// Stats 为一次监听会话的汇总。
type Stats struct {
	Runs     int
	Failures int
}

type root struct {
	path string
	file bool
}

type watcher struct {
	opts  Options
	fsw   *fsnotify.Watcher
	roots []root

	mu   sync.Mutex
	dirs map[string]struct{}
}

// Run 阻塞直到 ctx 取消；仅在订阅失败时返回错误。
// 事件循环与构建执行器由 errgroup 汇合，返回前关闭 fsnotify。
func Run(ctx context.Context, opts Options, build BuildFunc) (Stats, error) {
	if len(opts.Roots) == 0 {
		return Stats{}, fmt.Errorf("%w: no roots to watch", contract.ErrInvariantViolation)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return Stats{}, err
	}
	defer fsw.Close()

	w := &watcher{opts: opts, fsw: fsw, dirs: map[string]struct{}{}}
	for _, r := range opts.Roots {
		r = filepath.Clean(r)
		info, err := os.Stat(r)
		if err != nil {
			return Stats{}, err
		}
		if !info.IsDir() {
			// 单文件根：订阅其父目录，仅该文件触发
			w.roots = append(w.roots, root{path: r, file: true})
			if err := w.add(filepath.Dir(r)); err != nil {
				return Stats{}, err
			}
			continue
		}
		w.roots = append(w.roots, root{path: r})
		if err := w.addTree(r); err != nil {
			return Stats{}, err
		}
	}
	if opts.Ready != nil {
		opts.Ready(w.dirCount())
	}

	co := NewCoalescer(opts.Debounce)
	if opts.InitialBuild {
		co.Trigger(InitialReason)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.loop(gctx, co) })
	g.Go(func() error { return co.Run(gctx, build, opts.Done) })
	err = g.Wait()

	runs, failures := co.Stats()
	return Stats{Runs: runs, Failures: failures}, err
}

func (w *watcher) loop(ctx context.Context, co *Coalescer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if reason, ok := w.handle(ev); ok {
				w.opts.Logger.DebugStart("watch", "trigger", ev.Name, map[string]string{"op": ev.Op.String()})
				co.Trigger(reason)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("watch", string(diag.Classify(err)), "fsnotify error", map[string]string{"err": err.Error()})
		}
	}
}

// handle 判断事件是否需要重建；新目录在此加入订阅。
func (w *watcher) handle(ev fsnotify.Event) (string, bool) {
	name := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if w.skipped(name) {
				return "", false
			}
			if err := w.addTree(name); err != nil {
				w.opts.Logger.Warn("watch", string(diag.Classify(err)), "add dir failed", map[string]string{"dir": name, "err": err.Error()})
			}
			return name, true
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.forget(name) {
			// 目录移除：其中的片段随之消失
			return name, true
		}
	case ev.Has(fsnotify.Write):
	default:
		// Chmod 等
		return "", false
	}
	if w.relevant(name) {
		return name, true
	}
	return "", false
}

func (w *watcher) relevant(p string) bool {
	for _, r := range w.roots {
		if r.file {
			if p == r.path {
				return true
			}
			continue
		}
		if w.opts.Filter == nil {
			if rel, err := filepath.Rel(r.path, p); err == nil && rel != "." && !filepath.IsAbs(rel) && rel != ".." && !hasParentPrefix(rel) {
				return true
			}
			continue
		}
		if w.opts.Filter.Relevant(r.path, p) {
			return true
		}
	}
	return false
}

func (w *watcher) skipped(dir string) bool {
	return w.opts.Filter != nil && w.opts.Filter.SkipDir(filepath.Base(dir))
}

// addTree 订阅 dir 及其全部子目录（跳过排除名与目录符号链接）。
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			// 遍历期间消失的子目录忽略
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.skipped(p) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *watcher) add(dir string) error {
	dir = filepath.Clean(dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	return nil
}

// forget 移除 dir 及其子目录的记录；返回 dir 是否曾被订阅。
// fsnotify 在目录删除时自动撤销订阅。
func (w *watcher) forget(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || (len(d) > len(prefix) && d[:len(prefix)] == prefix) {
			delete(w.dirs, d)
		}
	}
	return true
}

func (w *watcher) dirCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
