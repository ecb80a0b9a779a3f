//go:build unix

package command

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsmerge/pkg/contract"
)

func TestArgs(t *testing.T) {
	f, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"npx", "prettier", "--write", "dist/a.d.ts"}, f.Args("dist/a.d.ts"))

	f, _ = New(&Options{Command: []string{"fmt", "-w"}})
	assert.Equal(t, []string{"fmt", "-w", "x"}, f.Args("x"))

	f, _ = New(&Options{Command: []string{"fmt", "--file={file}"}})
	assert.Equal(t, []string{"fmt", "--file=x"}, f.Args("x"))
}

func TestNewEmptyCommand(t *testing.T) {
	_, err := New(&Options{Command: []string{" "}})
	assert.Error(t, err)
}

// TestFormatRewritesFile 命令在返回前完成对文件的改写
func TestFormatRewritesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.d.ts")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	f, _ := New(&Options{Command: []string{"sh", "-c", `printf formatted > "$0" && echo done`, Placeholder}, Dir: dir})
	out, err := f.Format(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	b, _ := os.ReadFile(p)
	assert.Equal(t, "formatted", string(b))
}

// TestFormatFailure 非零退出包装为 ErrFormatFailed，并保留输出
func TestFormatFailure(t *testing.T) {
	f, _ := New(&Options{Command: []string{"sh", "-c", "echo broken >&2; exit 2"}})
	out, err := f.Format(context.Background(), "x")
	require.ErrorIs(t, err, contract.ErrFormatFailed)
	var ee *exec.ExitError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, "broken", out)
}

func TestFormatMissingBinary(t *testing.T) {
	f, _ := New(&Options{Command: []string{"dtsmerge-no-such-formatter"}})
	_, err := f.Format(context.Background(), "x")
	assert.ErrorIs(t, err, contract.ErrFormatFailed)
}

func TestFormatTimeout(t *testing.T) {
	f, _ := New(&Options{Command: []string{"sh", "-c", "exec sleep 5"}, TimeoutMS: 50})
	_, err := f.Format(context.Background(), "")
	require.ErrorIs(t, err, contract.ErrFormatFailed)
	assert.Contains(t, err.Error(), "timed out")
}
