package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"dtsmerge/internal/diag"
	"dtsmerge/internal/fragcache"
	"dtsmerge/internal/pipeline"
	"dtsmerge/pkg/contract"
	"dtsmerge/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
	}
	if !contract.ValidNamespace(cfg.Namespace) {
		return fmt.Errorf("config: namespace %q is not a (dotted) identifier", cfg.Namespace)
	}
	if strings.TrimSpace(cfg.Output.File) == "" {
		return errors.New("config: output.file empty")
	}
	if f := path.Clean(strings.ReplaceAll(cfg.Output.File, "\\", "/")); f == "." || f == ".." || strings.HasPrefix(f, "../") || path.IsAbs(f) {
		return fmt.Errorf("config: output.file %q must stay inside output.dir", cfg.Output.File)
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return errors.New("config: output.dir empty")
	}
	if lv := cfg.Logging.Level; lv != "" && !diag.ValidLevel(lv) {
		return fmt.Errorf("config: logging.level %q invalid", lv)
	}
	if cfg.DebounceMS() < 0 {
		return errors.New("config: watch.debounce_ms must be >= 0")
	}
	if cfg.CacheSize() < 0 {
		return errors.New("config: cache.size must be >= 0")
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Extractor, d.Extractor); registry.Extractor[name] == nil {
		return fmt.Errorf("config: extractor %q not registered", name)
	}
	if name := effName(cfg.Components.Merger, d.Merger); registry.Merger[name] == nil {
		return fmt.Errorf("config: merger %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Formatter, d.Formatter); registry.Formatter[name] == nil {
		return fmt.Errorf("config: formatter %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样子树。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults().Components
	sh := registry.Shared{Namespace: cfg.Namespace, OutputDir: cfg.Output.Dir}

	fail := func(kind, name string, err error) (pipeline.Components, pipeline.Settings, error) {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: %s %q: %w", kind, name, err)
	}

	rn := effName(cfg.Components.Reader, d.Reader)
	r, err := registry.Reader[rn](cfg.Options.Reader, sh)
	if err != nil {
		return fail("reader", rn, err)
	}
	xn := effName(cfg.Components.Extractor, d.Extractor)
	x, err := registry.Extractor[xn](cfg.Options.Extractor, sh)
	if err != nil {
		return fail("extractor", xn, err)
	}
	mn := effName(cfg.Components.Merger, d.Merger)
	m, err := registry.Merger[mn](cfg.Options.Merger, sh)
	if err != nil {
		return fail("merger", mn, err)
	}
	wn := effName(cfg.Components.Writer, d.Writer)
	w, err := registry.Writer[wn](cfg.Options.Writer, sh)
	if err != nil {
		return fail("writer", wn, err)
	}
	fn := effName(cfg.Components.Formatter, d.Formatter)
	f, err := registry.Formatter[fn](cfg.Options.Formatter, sh)
	if err != nil {
		return fail("formatter", fn, err)
	}
	cache, err := fragcache.New(cfg.CacheSize())
	if err != nil {
		return fail("cache", "lru", err)
	}

	comp := pipeline.Components{
		Reader:    r,
		Extractor: cache.Wrap(x),
		Merger:    m,
		Writer:    w,
		Formatter: f,
		Cache:     cache,
	}
	set := pipeline.Settings{
		Inputs: cloneStrings(cfg.Inputs),
		Output: contract.ArtifactID(path.Clean(strings.ReplaceAll(cfg.Output.File, "\\", "/"))),
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
