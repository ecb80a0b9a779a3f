package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	currentLogName  = "dtsmerge-current.log"
	rotatedPrefix   = "dtsmerge-"
	defaultMaxBytes = 10 * 1024 * 1024
	defaultMaxFiles = 5
)

// RotatingFile 是按大小轮转的日志 sink（实现 zapcore.WriteSyncer）。
// 当前文件固定为 dtsmerge-current.log；写入将超出 maxBytes 时改名为
// dtsmerge-<UTC 时间戳>.log 并新建当前文件，仅保留最近 maxFiles 个轮转文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	maxFiles int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewRotatingFile: maxBytes<=0 取 10MiB；maxFiles<=0 取 5。
// 目录与文件在首次写入时创建。
func NewRotatingFile(dir string, maxBytes int64, maxFiles int) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, maxFiles: maxFiles}
}

// Write 写入一条完整事件（zap 每次调用一行）。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return 0, err
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Sync 刷盘；未打开时为 no-op。
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close 关闭当前文件；之后的写入会重新打开。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingFile) open() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	// 纳秒精度，同秒多次轮转不互相覆盖；字典序即时间序
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	cur := filepath.Join(w.dir, currentLogName)
	if err := os.Rename(cur, filepath.Join(w.dir, rotatedPrefix+ts+".log")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune 删除超出保留数的最旧轮转文件；失败忽略。
func (w *RotatingFile) prune() {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var rotated []string
	for _, e := range ents {
		n := e.Name()
		if n != currentLogName && strings.HasPrefix(n, rotatedPrefix) && strings.HasSuffix(n, ".log") {
			rotated = append(rotated, n)
		}
	}
	if len(rotated) <= w.maxFiles {
		return
	}
	sort.Strings(rotated)
	for _, n := range rotated[:len(rotated)-w.maxFiles] {
		_ = os.Remove(filepath.Join(w.dir, n))
	}
}
