package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dtsmerge/internal/diag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestCoalescerSingleQueued 构建期间的 N 次触发至多带来一次额外构建
func TestCoalescerSingleQueued(t *testing.T) {
	co := NewCoalescer(0)
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var mu sync.Mutex
	var reasons []string
	build := func(ctx context.Context, reason string) error {
		mu.Lock()
		reasons = append(reasons, reason)
		first := len(reasons) == 1
		mu.Unlock()
		started <- struct{}{}
		if first {
			<-release
		}
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- co.Run(ctx, build, nil) }()

	co.Trigger("a.d.ts")
	<-started
	for i := 0; i < 10; i++ {
		co.Trigger("b.d.ts")
	}
	close(release)
	<-started
	// 给多余构建留出机会
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	runs, failures := co.Stats()
	assert.Equal(t, 2, runs)
	assert.Zero(t, failures)
	assert.Equal(t, []string{"a.d.ts", "b.d.ts"}, reasons)
}

// TestCoalescerDebounce 去抖窗口内的连续触发合并为一次构建
func TestCoalescerDebounce(t *testing.T) {
	co := NewCoalescer(80 * time.Millisecond)
	built := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- co.Run(ctx, func(_ context.Context, r string) error {
			built <- r
			return errors.New("broken fragment")
		}, nil)
	}()
	for i := 0; i < 5; i++ {
		co.Trigger("first")
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "first", <-built)
	time.Sleep(150 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	runs, failures := co.Stats()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, failures, "失败只计数，循环继续")
}

// TestCoalescerFixedWindow 窗口从首次触发起计时，持续触发不会无限推迟构建
func TestCoalescerFixedWindow(t *testing.T) {
	co := NewCoalescer(60 * time.Millisecond)
	built := make(chan string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- co.Run(ctx, func(_ context.Context, r string) error {
			built <- r
			return nil
		}, nil)
	}()
	start := time.Now()
	co.Trigger("burst")
	first := ""
	// 触发持续约 3 个窗口；首次构建须在触发停止前发生
	for time.Since(start) < 180*time.Millisecond {
		co.Trigger("burst")
		select {
		case r := <-built:
			if first == "" {
				first = r
				assert.Less(t, time.Since(start), 180*time.Millisecond)
			}
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "burst", first)
	runs, _ := co.Stats()
	assert.GreaterOrEqual(t, runs, 2)
}

// TestCoalescerCancelDuringDebounce 去抖期间取消不触发构建
func TestCoalescerCancelDuringDebounce(t *testing.T) {
	co := NewCoalescer(time.Hour)
	co.Trigger("x")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- co.Run(ctx, func(context.Context, string) error {
			t.Error("不应构建")
			return nil
		}, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

// dtsFilter 只关心 .d.ts，跳过 node_modules。
type dtsFilter struct{}

func (dtsFilter) Relevant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && !strings.HasPrefix(rel, "..") && strings.HasSuffix(path, ".d.ts")
}
func (dtsFilter) SkipDir(name string) bool { return name == "node_modules" }

// TestRunRebuildsOnChange 端到端：文件写入、新建目录都会触发重建
func TestRunRebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ui"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	builds := make(chan string, 16)
	ready := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		st  Stats
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := Run(ctx, Options{
			Roots:        []string{root},
			Filter:       dtsFilter{},
			Debounce:     20 * time.Millisecond,
			InitialBuild: true,
			Logger:       diag.NewNop(),
			Ready:        func(dirs int) { ready <- dirs },
		}, func(ctx context.Context, reason string) error {
			select {
			case builds <- reason:
			case <-ctx.Done():
			}
			return nil
		})
		done <- result{st, err}
	}()

	assert.Equal(t, 2, <-ready, "root 与 ui；node_modules 被跳过")
	waitFor(t, builds, InitialReason)

	require.NoError(t, os.WriteFile(filepath.Join(root, "ui", "a.d.ts"), []byte("x"), 0o644))
	waitFor(t, builds, filepath.Join(root, "ui", "a.d.ts"))

	// 新目录加入订阅，目录内新文件同样触发
	sub := filepath.Join(root, "share")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, builds, sub)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.d.ts"), []byte("x"), 0o644))
	waitFor(t, builds, filepath.Join(sub, "b.d.ts"))

	// 无关文件与排除目录不触发
	drain(builds, 150*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "c.d.ts"), []byte("x"), 0o644))
	select {
	case r := <-builds:
		t.Fatalf("unexpected build for %s", r)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	res := <-done
	require.NoError(t, res.err)
	assert.GreaterOrEqual(t, res.st.Runs, 4)
	assert.Zero(t, res.st.Failures)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), Options{}, nil)
	assert.Error(t, err)
	_, err = Run(context.Background(), Options{Roots: []string{filepath.Join(t.TempDir(), "missing")}}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// waitFor 等待触发原因为 want 的构建（忽略此前的合并余量）。
func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-ch:
			if r == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for build triggered by %s", want)
		}
	}
}

// drain 丢弃 quiet 时间内陆续到达的构建通知。
func drain(ch <-chan string, quiet time.Duration) {
	for {
		select {
		case <-ch:
		case <-time.After(quiet):
			return
		}
	}
}
