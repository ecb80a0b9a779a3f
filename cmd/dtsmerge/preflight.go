package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "dtsmerge/internal/config"
)

// preflightCheckOutputDir: Writer 为 fs 时，启动前检查输出目录可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：向上找到最近的已存在祖先，检查其可写（Writer 会按需逐级创建）。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	dir := strings.TrimSpace(cfg.Output.Dir)
	if dir == "" {
		return nil
	}
	for {
		st, err := os.Stat(dir)
		if err == nil {
			if !st.IsDir() {
				return fmt.Errorf("路径存在但不是目录: %s", dir)
			}
			f, err := os.CreateTemp(dir, ".wcheck-*")
			if err != nil {
				return err
			}
			name := f.Name()
			_ = f.Close()
			return os.Remove(name)
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		dir = parent
	}
}
