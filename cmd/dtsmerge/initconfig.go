package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "dtsmerge/internal/config"
)

// init-config 在目录下生成 dtsmerge.yaml 与 .env 模板；已存在的文件一律跳过，不覆盖。
func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成默认配置与 .env 模板",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr(err)
			}
			body, err := cfgpkg.TemplateYAML()
			if err != nil {
				return configErr(err)
			}
			out := cmd.OutOrStdout()
			for _, f := range []struct {
				name string
				body []byte
			}{
				{"dtsmerge.yaml", body},
				{".env", []byte(cfgpkg.EnvTemplate)},
			} {
				p := filepath.Join(dir, f.name)
				created, err := writeNew(p, f.body)
				if err != nil {
					return configErr(err)
				}
				if created {
					fprintf(out, "已生成 %s\n", p)
				} else {
					fprintf(out, "已存在，跳过 %s\n", p)
				}
			}
			return nil
		},
	}
}

// writeNew 仅在文件不存在时写入；已存在返回 created=false。
func writeNew(path string, body []byte) (created bool, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
