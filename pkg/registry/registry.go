package registry

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"dtsmerge/pkg/contract"
	xregex "dtsmerge/plugins/extractor/regex"
	xts "dtsmerge/plugins/extractor/treesitter"
	fcmd "dtsmerge/plugins/formatter/command"
	fnone "dtsmerge/plugins/formatter/none"
	mns "dtsmerge/plugins/merger/namespace"
	rfs "dtsmerge/plugins/reader/filesystem"
	wfs "dtsmerge/plugins/writer/filesystem"
)

// Shared: 由顶层配置注入、多个组件共用的参数。
type Shared struct {
	// Namespace: 目标命名空间（抽取器校验、合并器包裹）。
	Namespace string
	// OutputDir: 输出目录（Writer 未显式配置 output_dir 时使用）。
	OutputDir string
}

// strictDecode: 以 KnownFields 严格解码组件选项子树，拒绝未知字段。
func strictDecode(raw *yaml.Node, v any) error {
	if raw == nil || raw.Kind == 0 {
		// 保持零值（默认选项）
		return nil
	}
	if raw.Kind == yaml.ScalarNode && raw.Tag == "!!null" {
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewReader 等工厂签名：接收原样 YAML 选项子树与共享参数。
type (
	NewReader    func(raw *yaml.Node, sh Shared) (contract.Reader, error)
	NewExtractor func(raw *yaml.Node, sh Shared) (contract.Extractor, error)
	NewMerger    func(raw *yaml.Node, sh Shared) (contract.Merger, error)
	NewWriter    func(raw *yaml.Node, sh Shared) (contract.Writer, error)
	NewFormatter func(raw *yaml.Node, sh Shared) (contract.Formatter, error)
)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 目录树 + doublestar glob
	"fs": func(raw *yaml.Node, _ Shared) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Extractor 工厂注册表。
var Extractor = map[string]NewExtractor{
	// treesitter: 语法树定位外壳（默认）
	"treesitter": func(raw *yaml.Node, sh Shared) (contract.Extractor, error) {
		var opts xts.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		opts.Namespace = sh.Namespace
		return xts.New(&opts), nil
	},
	// regex: 兼容旧构建脚本的文本替换
	"regex": func(raw *yaml.Node, sh Shared) (contract.Extractor, error) {
		var opts xregex.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		opts.Namespace = sh.Namespace
		return xregex.New(&opts), nil
	},
}

// Merger 工厂注册表。
var Merger = map[string]NewMerger{
	"namespace": func(raw *yaml.Node, sh Shared) (contract.Merger, error) {
		var opts mns.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		opts.Namespace = sh.Namespace
		return mns.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw *yaml.Node, sh Shared) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		if opts.OutputDir == "" {
			opts.OutputDir = sh.OutputDir
		}
		return wfs.New(&opts)
	},
}

// Formatter 工厂注册表。
var Formatter = map[string]NewFormatter{
	// command: 外部进程（默认 npx prettier --write）
	"command": func(raw *yaml.Node, _ Shared) (contract.Formatter, error) {
		var opts fcmd.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return fcmd.New(&opts)
	},
	// none 是关闭开关：--no-format 时 options.formatter 仍是命令格式化器的子树，忽略之。
	"none": func(_ *yaml.Node, _ Shared) (contract.Formatter, error) {
		return fnone.New(), nil
	},
}
