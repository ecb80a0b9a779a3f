package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "DTSMERGE_"

// Defaults 返回与既有构建脚本等价的默认配置。
func Defaults() Config {
	return Config{
		Inputs:    []string{"types"},
		Namespace: "KuaiShouWebMinigame",
		Output:    Output{Dir: "dist", File: "lib.ks.api.d.ts"},
		Logging:   Logging{Level: "info", Dir: ".dtsmerge/logs"},
		Watch:     Watch{DebounceMS: intPtr(100), InitialBuild: boolPtr(false)},
		Cache:     Cache{Size: intPtr(256)},
		Components: Components{
			Reader:    "fs",
			Extractor: "treesitter",
			Merger:    "namespace",
			Writer:    "fs",
			Formatter: "command",
		},
	}
}

// LoadYAML 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
// JSON 为 YAML 子集，同样可被解析。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件等价于空配置
			return Config{}, nil
		}
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅做“替换”；不做深度合并。空字符串/nil 视为未设置。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Namespace); s != "" {
		out.Namespace = s
	}
	if over.Output.Dir != "" {
		out.Output.Dir = over.Output.Dir
	}
	if over.Output.File != "" {
		out.Output.File = over.Output.File
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if over.Logging.Dir != "" {
		out.Logging.Dir = over.Logging.Dir
	}
	if over.Watch.DebounceMS != nil {
		out.Watch.DebounceMS = intPtr(*over.Watch.DebounceMS)
	}
	if over.Watch.InitialBuild != nil {
		out.Watch.InitialBuild = boolPtr(*over.Watch.InitialBuild)
	}
	if over.Cache.Size != nil {
		out.Cache.Size = intPtr(*over.Cache.Size)
	}

	// 组件名（空不覆盖）
	out.Components.Reader = pick(out.Components.Reader, over.Components.Reader)
	out.Components.Extractor = pick(out.Components.Extractor, over.Components.Extractor)
	out.Components.Merger = pick(out.Components.Merger, over.Components.Merger)
	out.Components.Writer = pick(out.Components.Writer, over.Components.Writer)
	out.Components.Formatter = pick(out.Components.Formatter, over.Components.Formatter)

	// Options（完整替换对应键）
	out.Options.Reader = pickNode(out.Options.Reader, over.Options.Reader)
	out.Options.Extractor = pickNode(out.Options.Extractor, over.Options.Extractor)
	out.Options.Merger = pickNode(out.Options.Merger, over.Options.Merger)
	out.Options.Writer = pickNode(out.Options.Writer, over.Options.Writer)
	out.Options.Formatter = pickNode(out.Options.Formatter, over.Options.Formatter)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUTS, NAMESPACE, OUTPUT_DIR, OUTPUT_FILE, LOG_LEVEL, LOG_DIR,
// WATCH_DEBOUNCE_MS, WATCH_INITIAL_BUILD, CACHE_SIZE, COMPONENTS_*。
// 其余 DTSMERGE_ 键忽略（例如 CONFIG_FILE 由命令行层读取）。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			// 空值视为未设置，避免清空配置文件中的值
			continue
		}
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "NAMESPACE":
			over.Namespace = val
		case "OUTPUT_DIR":
			over.Output.Dir = val
		case "OUTPUT_FILE":
			over.Output.File = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "WATCH_DEBOUNCE_MS":
			v, err := strconv.Atoi(val)
			if err != nil {
				return over, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			over.Watch.DebounceMS = intPtr(v)
		case "WATCH_INITIAL_BUILD":
			v, err := strconv.ParseBool(val)
			if err != nil {
				return over, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			over.Watch.InitialBuild = boolPtr(v)
		case "CACHE_SIZE":
			v, err := strconv.Atoi(val)
			if err != nil {
				return over, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			over.Cache.Size = intPtr(v)
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_EXTRACTOR":
			over.Components.Extractor = val
		case "COMPONENTS_MERGER":
			over.Components.Merger = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_FORMATTER":
			over.Components.Formatter = val
		}
	}
	return over, nil
}

func pick(cur, over string) string {
	if s := strings.TrimSpace(over); s != "" {
		return s
	}
	return cur
}

func pickNode(cur, over *yaml.Node) *yaml.Node {
	if over != nil && over.Kind != 0 {
		return over
	}
	return cur
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
