package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"dtsmerge/internal/diag"
	"dtsmerge/internal/fragcache"
	"dtsmerge/pkg/contract"
)

// - 单遍：Reader → Extractor → Merger → Writer → Formatter，无重试。
// - 首错即止：读取/抽取/合并/写出任一失败立即返回，输出文件保持上次内容。
// - 格式化失败非致命：记录并随 Result 返回，构建仍视为成功。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Extractor contract.Extractor
	Merger    contract.Merger
	Writer    contract.Writer
	// Formatter 可为 nil（等同跳过）。
	Formatter contract.Formatter
	// Cache 仅用于统计；Extractor 已按需包裹缓存。
	Cache *fragcache.Cache
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// Output: 交给 Writer 的产物标识（相对输出目录）。
	Output contract.ArtifactID
}

// Result 为一次构建的摘要。
type Result struct {
	Fragments int
	Decls     int
	Bytes     int64
	// Output: 落盘路径（Writer 实现 Locator 时）或产物标识。
	Output       string
	Formatted    bool
	FormatOutput string
	FormatError  error
	Duration     time.Duration
}

// Run 执行一次完整构建。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	start := time.Now()
	var res Result
	if err := sanity(comp, set); err != nil {
		return res, fmt.Errorf("sanity: %w", err)
	}

	frags, err := Collect(ctx, comp, set, logger)
	if err != nil {
		return res, err
	}

	mtimer := logger.StartWith("merger", "merge", string(set.Output))
	r, stats, err := comp.Merger.Merge(ctx, frags)
	if err != nil {
		return res, stageFailed(logger, "merger", "merge", string(set.Output), err)
	}
	mtimer.Finish("merge", int64(stats.Decls))
	diag.IncOp("merger", "finish", "success")
	res.Fragments, res.Decls, res.Bytes = stats.Fragments, stats.Decls, stats.Bytes

	wtimer := logger.StartWith("writer", "write", string(set.Output))
	if err := comp.Writer.Write(ctx, set.Output, r); err != nil {
		return res, stageFailed(logger, "writer", "write", string(set.Output), err)
	}
	wtimer.Finish("write", stats.Bytes)
	diag.IncOp("writer", "finish", "success")

	res.Output = string(set.Output)
	if loc, ok := comp.Writer.(contract.Locator); ok {
		if p, lerr := loc.Locate(set.Output); lerr == nil {
			res.Output = p
		}
	}

	if comp.Formatter != nil {
		ftimer := logger.StartWith("formatter", "format", res.Output)
		out, ferr := comp.Formatter.Format(ctx, res.Output)
		res.FormatOutput = out
		switch {
		case ferr == nil:
			res.Formatted = true
			ftimer.Finish("format", 0)
			diag.IncOp("formatter", "finish", "success")
		case ctx.Err() != nil:
			// 取消不是格式化失败
			return res, ctx.Err()
		default:
			res.FormatError = ferr
			code := diag.Classify(ferr)
			logger.Warn("formatter", string(code), "format failed", map[string]string{"file_id": res.Output, "err": ferr.Error(), "output": out})
			diag.IncOp("formatter", "error", "error")
			diag.IncError("formatter", string(code))
		}
	}

	res.Duration = time.Since(start)
	diag.ObserveDuration("pipeline", "run", res.Duration.Milliseconds())
	if hits, misses := comp.Cache.Stats(); hits+misses > 0 {
		logger.DebugStart("fragcache", "stats", "", map[string]string{
			"hits":   strconv.FormatInt(hits, 10),
			"misses": strconv.FormatInt(misses, 10),
			"len":    strconv.Itoa(comp.Cache.Len()),
		})
	}
	logger.InfoFinish("pipeline", "run", start, int64(res.Fragments))
	return res, nil
}

// Collect 按 Reader 的枚举顺序读取并抽取全部片段（不合并、不写出）。
func Collect(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]contract.Fragment, error) {
	if comp.Reader == nil || comp.Extractor == nil {
		return nil, errors.New("pipeline: missing components")
	}
	var frags []contract.Fragment
	rtimer := logger.Start("reader", "iterate")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		xtimer := logger.StartWith("extractor", "extract", string(id))
		f, err := comp.Extractor.Extract(ctx, id, rc)
		if err != nil {
			return &stageError{comp: "extractor", op: "extract", fileID: string(id), err: err}
		}
		xtimer.Finish("extract", int64(len(f.Decls)))
		diag.IncOp("extractor", "finish", "success")
		frags = append(frags, f)
		return nil
	})
	if err != nil {
		var se *stageError
		if errors.As(err, &se) {
			return nil, stageFailed(logger, se.comp, se.op, se.fileID, se.err)
		}
		return nil, stageFailed(logger, "reader", "iterate", "", err)
	}
	rtimer.Finish("iterate", int64(len(frags)))
	diag.IncOp("reader", "finish", "success")
	return frags, nil
}

// Duplicate 描述同名声明在多个片段中的出现位置。
type Duplicate struct {
	Name  string
	Sites []Site
}

// Site 为一次声明出现。
type Site struct {
	FileID contract.FileID
	Kind   contract.DeclKind
	Line   int
}

// FindDuplicates 列出全部同名声明（按名称排序），供只读检查使用。
func FindDuplicates(frags []contract.Fragment) []Duplicate {
	sites := map[string][]Site{}
	for _, f := range frags {
		for _, d := range f.Decls {
			sites[d.Name] = append(sites[d.Name], Site{FileID: f.FileID, Kind: d.Kind, Line: d.Line})
		}
	}
	var out []Duplicate
	for name, s := range sites {
		if len(s) > 1 {
			out = append(out, Duplicate{Name: name, Sites: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// stageError 在 Reader 回调中携带出错阶段信息。
type stageError struct {
	comp, op, fileID string
	err              error
}

func (e *stageError) Error() string { return e.comp + " " + e.op + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// stageFailed 记录日志与计数，并包装为 "<comp> <op>: <err>"。
func stageFailed(logger *diag.Logger, comp, op, fileID string, err error) error {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), op+" failed", nil, fileID)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
	return fmt.Errorf("%s %s: %w", comp, op, err)
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Extractor == nil || c.Merger == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	if s.Output == "" {
		return errors.New("pipeline: empty output")
	}
	return nil
}
