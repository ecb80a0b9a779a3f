package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 标签着色；非 TTY: 纯文本逐行。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	builds   int
	failures int
	started  time.Time

	mu sync.Mutex
}

var (
	tagOK   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	tagFail = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	tagWarn = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	tagInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled, started: time.Now()}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// WatchReady: 监听已就绪。
func (t *Terminal) WatchReady(roots []string, dirs int) {
	t.emit(tagInfo, "watch", fmt.Sprintf("监听 %s | 目录 %d | Ctrl+C 退出", safe(strings.Join(roots, ",")), dirs))
}

// BuildStart: 一次构建开始；reason 为触发原因（build/initial/变更文件名）。
func (t *Terminal) BuildStart(reason string) {
	t.emit(tagInfo, "build", fmt.Sprintf("开始 | 触发 %s", shortenBase(reason, 48)))
}

// BuildFinish: 一次构建结束。
func (t *Terminal) BuildFinish(ok bool, output string, fragments, decls int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.builds++
	if !ok {
		t.failures++
	}
	t.mu.Unlock()
	if !ok {
		t.emit(tagFail, "fail", fmt.Sprintf("构建失败 | 用时 %s", formatDur(dur)))
		return
	}
	t.emit(tagOK, "done", fmt.Sprintf("%s | 片段 %d | 声明 %d | 用时 %s", safe(output), fragments, decls, formatDur(dur)))
}

// FormatResult: 格式化结果（失败为警告，不影响构建结果）。
func (t *Terminal) FormatResult(ok bool, detail string) {
	if ok {
		t.emit(tagOK, "fmt", "格式化完成 "+firstLine(detail))
		return
	}
	t.emit(tagWarn, "fmt", "格式化失败（保留未格式化文件）: "+firstLine(detail))
}

// WatchStop: 监听结束总览。
func (t *Terminal) WatchStop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	b, f, s := t.builds, t.failures, t.started
	t.mu.Unlock()
	t.emit(tagInfo, "watch", fmt.Sprintf("已停止 | 构建 %d 次 | 失败 %d 次 | 总用时 %s", b, f, formatSince(s)))
}

func (t *Terminal) emit(style lipgloss.Style, tag, msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	label := "[" + tag + "]"
	if t.isTTY {
		label = style.Render(label)
	}
	if _, err := io.WriteString(t.w, label+" "+msg+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "" || base == "." {
		return ""
	}
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	return string(rs[:cut]) + "…"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return safe(s)
}

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
