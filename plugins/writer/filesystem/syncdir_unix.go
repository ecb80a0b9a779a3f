//go:build !windows

package filesystem

import "os"

// syncDir 持久化 rename 后的目录项。
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
