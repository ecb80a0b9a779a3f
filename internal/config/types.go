package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
// 指针字段用于区分“未设置”与显式零值（0/false 具有语义）。
type Config struct {
	// Inputs: 片段根目录（或单个片段文件）。
	Inputs []string `yaml:"inputs"`
	// Namespace: 包裹命名空间，亦为片段必须声明的命名空间。
	Namespace string  `yaml:"namespace"`
	Output    Output  `yaml:"output"`
	Logging   Logging `yaml:"logging"`
	Watch     Watch   `yaml:"watch"`
	Cache     Cache   `yaml:"cache"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components"`
	// 各组件 Options 子树，原样传入工厂。
	Options Options `yaml:"options"`
}

// Output: 产物位置 <dir>/<file>。
type Output struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

// Logging: 日志等级与目录；轮转阈值为固定默认。
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Watch: 监听模式参数。
type Watch struct {
	// DebounceMS: 事件合并窗口（毫秒，>=0）。
	DebounceMS *int `yaml:"debounce_ms"`
	// InitialBuild: 启动时是否先构建一次。
	InitialBuild *bool `yaml:"initial_build"`
}

// Cache: 抽取缓存容量（条目数，0 关闭）。
type Cache struct {
	Size *int `yaml:"size"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `yaml:"reader"`
	Extractor string `yaml:"extractor"`
	Merger    string `yaml:"merger"`
	Writer    string `yaml:"writer"`
	Formatter string `yaml:"formatter"`
}

// Options: 各组件的原样 YAML 子树（由组件自行严格解码）。
type Options struct {
	Reader    *yaml.Node `yaml:"reader,omitempty"`
	Extractor *yaml.Node `yaml:"extractor,omitempty"`
	Merger    *yaml.Node `yaml:"merger,omitempty"`
	Writer    *yaml.Node `yaml:"writer,omitempty"`
	Formatter *yaml.Node `yaml:"formatter,omitempty"`
}

// UnmarshalYAML 原样保留各组件子树，仅拒绝未知的组件键。
// 子树内部的键由组件工厂严格解码，不经 KnownFields。
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		value = value.Alias
	}
	if value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", value.Line)
	}
	var out Options
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		var slot **yaml.Node
		switch k.Value {
		case "reader":
			slot = &out.Reader
		case "extractor":
			slot = &out.Extractor
		case "merger":
			slot = &out.Merger
		case "writer":
			slot = &out.Writer
		case "formatter":
			slot = &out.Formatter
		default:
			return fmt.Errorf("line %d: field %s not found in options", k.Line, k.Value)
		}
		if *slot != nil {
			return fmt.Errorf("line %d: options.%s already set", k.Line, k.Value)
		}
		*slot = v
	}
	*o = out
	return nil
}

// DebounceMS 返回生效的去抖窗口（毫秒）。
func (c Config) DebounceMS() int {
	if c.Watch.DebounceMS != nil {
		return *c.Watch.DebounceMS
	}
	return *Defaults().Watch.DebounceMS
}

// InitialBuild 返回是否在监听启动时先构建。
func (c Config) InitialBuild() bool {
	return c.Watch.InitialBuild != nil && *c.Watch.InitialBuild
}

// CacheSize 返回生效的缓存容量。
func (c Config) CacheSize() int {
	if c.Cache.Size != nil {
		return *c.Cache.Size
	}
	return *Defaults().Cache.Size
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
