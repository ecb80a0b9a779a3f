//go:build unix

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsmerge/pkg/contract"
)

// TestIterateSymlinkDirRoot 符号链接指向目录时忽略
func TestIterateSymlinkDirRoot(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	writeFile(t, filepath.Join(realDir, "a.d.ts"), "x")
	link := filepath.Join(root, "ln")
	require.NoError(t, os.Symlink(realDir, link))

	assert.Empty(t, collectRel(t, mustNew(t, nil), link))
}

// TestWalkDirSymlinks 目录链接忽略，文件链接跟随，失效链接跳过
func TestWalkDirSymlinks(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(sub, "ok.d.ts"), "o")
	require.NoError(t, os.Symlink(sub, filepath.Join(root, "sub_link")))
	require.NoError(t, os.Symlink(filepath.Join(sub, "ok.d.ts"), filepath.Join(root, "alias.d.ts")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling.d.ts")))

	got := collectRel(t, mustNew(t, nil), root)
	assert.Equal(t, []string{"alias.d.ts", "sub/ok.d.ts"}, got)
}

// TestIterateSymlinkDangling 作为 root 的失效链接返回错误
func TestIterateSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "no"), link))
	err := mustNew(t, nil).Iterate(context.Background(), []string{link}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.Error(t, err)
}

// TestWalkDirNonRegular 非常规文件被忽略
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "fifo.d.ts"), 0o644))
	assert.Empty(t, collectRel(t, mustNew(t, nil), root))
}

// TestIterateUnreadable 不可读文件使整次遍历失败
func TestIterateUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可读取任意文件")
	}
	root := t.TempDir()
	fp := filepath.Join(root, "a.d.ts")
	writeFile(t, fp, "x")
	require.NoError(t, os.Chmod(fp, 0o000))
	err := mustNew(t, nil).Iterate(context.Background(), []string{root}, func(_ contract.FileID, rc io.ReadCloser) error { return rc.Close() })
	assert.ErrorIs(t, err, os.ErrPermission)
}
