package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// node 将 YAML 文本解析为选项子树（文档节点的首个子节点）。
func node(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	if len(doc.Content) == 0 {
		return nil
	}
	return doc.Content[0]
}

// TestStrictDecode 验证严格解码逻辑。
func TestStrictDecode(t *testing.T) {
	type opt struct {
		A int `yaml:"a"`
	}
	var o opt
	require.NoError(t, strictDecode(nil, &o))
	assert.Zero(t, o.A)
	require.NoError(t, strictDecode(node(t, "null"), &o))
	require.NoError(t, strictDecode(node(t, "a: 1"), &o))
	assert.Equal(t, 1, o.A)
	assert.Error(t, strictDecode(node(t, "a: 1\nb: 2"), &o), "未知字段应报错")
	assert.Error(t, strictDecode(node(t, "a: x"), &o))
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	sh := Shared{Namespace: "KuaiShouWebMinigame", OutputDir: t.TempDir()}
	unknown := node(t, "x: 1")

	for name, f := range Reader {
		_, err := f(nil, sh)
		assert.NoError(t, err, "reader %s", name)
		_, err = f(unknown, sh)
		assert.Error(t, err, "reader %s 未对未知字段报错", name)
	}
	for name, f := range Extractor {
		_, err := f(nil, sh)
		assert.NoError(t, err, "extractor %s", name)
		_, err = f(unknown, sh)
		assert.Error(t, err, "extractor %s 未对未知字段报错", name)
	}
	for name, f := range Merger {
		_, err := f(node(t, "allow_merge_kinds: [interface]"), sh)
		assert.NoError(t, err, "merger %s", name)
		_, err = f(unknown, sh)
		assert.Error(t, err, "merger %s 未对未知字段报错", name)
		_, err = f(nil, Shared{})
		assert.Error(t, err, "merger %s 缺少命名空间应报错", name)
	}
	for name, f := range Writer {
		_, err := f(nil, sh)
		assert.NoError(t, err, "writer %s", name)
		_, err = f(nil, Shared{})
		assert.Error(t, err, "writer %s 缺少输出目录应报错", name)
	}
	for name, f := range Formatter {
		_, err := f(nil, sh)
		assert.NoError(t, err, "formatter %s", name)
		if name == "none" {
			continue
		}
		_, err = f(unknown, sh)
		assert.Error(t, err, "formatter %s 未对未知字段报错", name)
	}
}

// none 忽略命令格式化器的子树（--no-format 搭配完整配置）
func TestFormatterNoneIgnoresOptions(t *testing.T) {
	f, err := Formatter["none"](node(t, "command: [npx, prettier, --write, \"{file}\"]\ntimeout_ms: 60000"), Shared{})
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestFormatterCommandOptions(t *testing.T) {
	_, err := Formatter["command"](node(t, "command: [prettier, --write]\ntimeout_ms: 1000\ndir: ."), Shared{})
	assert.NoError(t, err)
	_, err = Formatter["command"](node(t, "command: ['']"), Shared{})
	assert.Error(t, err)
}
