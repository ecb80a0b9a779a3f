package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsmerge/pkg/contract"
)

func noTmpLeft(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "tmp file not cleaned: %s", e.Name())
	}
}

// TestWriteAtomic 原子写入并创建父目录
func TestWriteAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "lib.ks.api.d.ts", bytes.NewBufferString("data")))
	b, err := os.ReadFile(filepath.Join(dir, "lib.ks.api.d.ts"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	noTmpLeft(t, dir)
}

// TestWriteAtomicReplaceExisting 目标已存在时替换为新内容
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "out.d.ts", bytes.NewBufferString("v1")))
	require.NoError(t, w.Write(context.Background(), "out.d.ts", bytes.NewBufferString("v2")))
	b, err := os.ReadFile(filepath.Join(dir, "out.d.ts"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	noTmpLeft(t, dir)
}

// TestWritePathInvalid 路径越界
func TestWritePathInvalid(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	err := w.Write(context.Background(), "../bad", bytes.NewBufferString("x"))
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}

// TestWriteNonAtomic 非原子写入，保留子目录
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	off := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &off})
	require.NoError(t, w.Write(context.Background(), "sub/out.d.ts", bytes.NewBufferString("v")))
	_, err := os.Stat(filepath.Join(dir, "sub", "out.d.ts"))
	assert.NoError(t, err)
}

// TestLocate 定位与写入路径一致
func TestLocate(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	p, err := w.Locate("sub/lib.d.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub", "lib.d.ts"), p)

	p, err = w.Locate("./sub/../lib.d.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lib.d.ts"), p)
}

// TestLocateOutsideRoot 逃逸输出目录的 ID 一律拒绝
func TestLocateOutsideRoot(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ids := []string{"", ".", "..", "../bad", "a/../../b", "/abs"}
	if runtime.GOOS == "windows" {
		ids = append(ids, `C:\abs`, `C:rel`, `\\host\share\x`, "NUL")
	}
	for _, id := range ids {
		_, err := w.Locate(contract.ArtifactID(id))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "%q", id)
	}
}

// TestWriteKeepsOldOnFailure 原子写入失败时目标保持旧内容
func TestWriteKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	require.NoError(t, w.Write(context.Background(), "out.d.ts", strings.NewReader("v1")))
	require.Error(t, w.Write(context.Background(), "out.d.ts", errReader{}))
	b, err := os.ReadFile(filepath.Join(dir, "out.d.ts"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))
	noTmpLeft(t, dir)
}

// TestNewDefaults 零值选项取缺省
func TestNewDefaults(t *testing.T) {
	w, err := New(&Options{OutputDir: "dist", BufSize: -1})
	require.NoError(t, err)
	assert.True(t, w.atomic)
	assert.Equal(t, defaultFileMode, w.fileMode)
	assert.Equal(t, defaultDirMode, w.dirMode)
	assert.Equal(t, defaultBufSize, w.bufSize)
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "a.d.ts", strings.NewReader("data")), context.Canceled)
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, os.ErrInvalid)
	_, err = New(&Options{OutputDir: "  "})
	assert.ErrorIs(t, err, os.ErrInvalid)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 拷贝失败时不残留临时文件，也不留下半成品
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	require.Error(t, w.Write(context.Background(), "a.d.ts", errReader{}))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

// TestCtxReaderCancel 取消后读取立即失败
func TestCtxReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := ctxReader{ctx: ctx, r: strings.NewReader("data")}
	cancel()
	_, err := r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
