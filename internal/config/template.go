package config

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// EnvTemplate 为 init-config 生成的 .env 模板（全部注释，按需启用）。
const EnvTemplate = `# dtsmerge 环境变量（优先级：命令行 > 环境变量 > 配置文件 > 默认值）
# DTSMERGE_CONFIG_FILE=dtsmerge.yaml
# DTSMERGE_INPUTS=types
# DTSMERGE_NAMESPACE=KuaiShouWebMinigame
# DTSMERGE_OUTPUT_DIR=dist
# DTSMERGE_OUTPUT_FILE=lib.ks.api.d.ts
# DTSMERGE_LOG_LEVEL=info
# DTSMERGE_LOG_DIR=.dtsmerge/logs
# DTSMERGE_WATCH_DEBOUNCE_MS=100
# DTSMERGE_WATCH_INITIAL_BUILD=false
# DTSMERGE_CACHE_SIZE=256
# DTSMERGE_COMPONENTS_EXTRACTOR=treesitter
# DTSMERGE_COMPONENTS_FORMATTER=command
`

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 与默认值一致（types → dist/lib.ks.api.d.ts）；
// - 各组件选项列出全部键，值为中性默认；
// - index.d.ts 排在最前，使根接口 KS 位于命名空间开头。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Options.Reader = mustNode(`
patterns: ["**/*.d.ts"]
exclude_dir_names: [node_modules, .git]
leading: [index.d.ts]
buf_size: 65536
`)
	cfg.Options.Extractor = mustNode(`
max_bytes: 8388608
`)
	cfg.Options.Merger = mustNode(`
header_comment: KuaiShouWeb的变量命名空间
global:
  name: ks
  type: KS
  comment: 将KuaiShouWeb的ks变量声明为全局变量
no_global: false
allow_merge_kinds: []
`)
	cfg.Options.Writer = mustNode(`
atomic: true
perm_file: 0
perm_dir: 0
buf_size: 65536
`)
	cfg.Options.Formatter = mustNode(`
command: [npx, prettier, --write, "{file}"]
timeout_ms: 60000
dir: ""
`)
	return cfg
}

// TemplateYAML 序列化模板配置（两空格缩进）。
func TemplateYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultTemplateConfig()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustNode(src string) *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		panic(err)
	}
	return doc.Content[0]
}
