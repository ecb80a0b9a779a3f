package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "dtsmerge/internal/config"
	"dtsmerge/internal/diag"
	"dtsmerge/internal/pipeline"
	"dtsmerge/internal/watch"
)

var (
	pipelineRun = pipeline.Run
	watchRun    = watch.Run
)

// 退出码：0 成功（含格式化失败）；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// 子命令：build / watch / inspect / init-config。
// 位置参数为 roots（片段目录或单个文件），覆盖配置中的 inputs。
func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带进程退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: exitConfig, err: err} }
func runtimeErr(err error) error { return &exitError{code: exitRuntime, err: err} }

// globalFlags 为所有子命令共享的旗标。
type globalFlags struct {
	config   string
	logLevel string
	status   bool
}

// buildFlags 为 build/watch/inspect 的覆盖项。
type buildFlags struct {
	namespace string
	outputDir string
	output    string
	noFormat  bool
}

func (b *buildFlags) bind(cmd *cobra.Command, withOutput bool) {
	cmd.Flags().StringVar(&b.namespace, "namespace", "", "包裹命名空间（覆盖配置）")
	if !withOutput {
		return
	}
	cmd.Flags().StringVar(&b.outputDir, "output-dir", "", "输出目录（覆盖配置）")
	cmd.Flags().StringVar(&b.output, "output", "", "输出文件名，相对输出目录（覆盖配置）")
	cmd.Flags().BoolVar(&b.noFormat, "no-format", false, "跳过格式化（formatter=none）")
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fprintf(stderr, "读取 .env 失败: %v\n", err)
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		fprintf(stderr, "错误: %v\n", ee.err)
		return ee.code
	}
	// cobra 的参数/旗标解析错误视为配置错误
	fprintf(stderr, "错误: %v\n", err)
	return exitConfig
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "dtsmerge",
		Short:         "合并命名空间声明片段为单个 .d.ts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.config, "config", "", "配置文件路径（YAML/JSON）；缺省读取 ./dtsmerge.yaml（若存在）")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	root.PersistentFlags().BoolVar(&g.status, "status", true, "终端状态提示（stderr）")

	root.AddCommand(newBuildCmd(g), newWatchCmd(g), newInspectCmd(g), newInitConfigCmd())
	return root
}

// session 为一次命令执行装配好的运行环境。
type session struct {
	cfg    cfgpkg.Config
	comp   pipeline.Components
	set    pipeline.Settings
	logger *diag.Logger
	term   *diag.Terminal
	errw   io.Writer
}

func (s *session) close() {
	diag.SetTerminal(nil)
	_ = s.logger.Close()
}

// prepare 按 CLI > ENV > 文件 > 默认 的顺序合并配置，校验并装配组件。
// 返回的错误已带退出码。
func prepare(cmd *cobra.Command, g *globalFlags, b *buildFlags, roots []string, overlay func(*cfgpkg.Config)) (*session, error) {
	cfg, err := loadConfig(g, b, roots)
	if err != nil {
		return nil, configErr(err)
	}
	if overlay != nil {
		overlay(&cfg)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(cmd.ErrOrStderr(), cfg)
		return nil, configErr(err)
	}
	logger := diag.NewLogger(uuid.NewString(), diag.Options{Level: cfg.Logging.Level, Dir: cfg.Logging.Dir})
	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("cli", string(diag.CodeConfig), "output dir not writable", nil)
		_ = logger.Close()
		return nil, configErr(fmt.Errorf("输出目录不可写: %w", err))
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("cli", string(diag.CodeConfig), "assemble failed", nil)
		_ = logger.Close()
		return nil, configErr(err)
	}
	term := diag.NewTerminal(cmd.ErrOrStderr(), g.status)
	diag.SetTerminal(term)
	logger.DebugStart("cli", "effective config", "", map[string]string{
		"inputs":    strings.Join(cfg.Inputs, ","),
		"namespace": cfg.Namespace,
		"output":    cfg.Output.Dir + "/" + cfg.Output.File,
		"extractor": cfg.Components.Extractor,
		"formatter": cfg.Components.Formatter,
		"cache":     fmt.Sprint(cfg.CacheSize()),
	})
	return &session{cfg: cfg, comp: comp, set: set, logger: logger, term: term, errw: cmd.ErrOrStderr()}, nil
}

// loadConfig 定位并合并配置；文件来源依次为 --config、DTSMERGE_CONFIG_FILE、./dtsmerge.yaml。
func loadConfig(g *globalFlags, b *buildFlags, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := strings.TrimSpace(g.config)
	explicit := path != ""
	if !explicit {
		if p := strings.TrimSpace(os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")); p != "" {
			path, explicit = p, true
		} else {
			path = "dtsmerge.yaml"
		}
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		fileCfg, err := cfgpkg.LoadYAML(path, raw)
		if err != nil {
			return cfgpkg.Config{}, err
		}
		cfg = cfgpkg.Merge(cfg, fileCfg)
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfgpkg.Config{}, fmt.Errorf("读取配置 %s: %w", path, err)
	}

	envCfg, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfg = cfgpkg.Merge(cfg, envCfg)

	var cli cfgpkg.Config
	if len(roots) > 0 {
		cli.Inputs = roots
	}
	cli.Logging.Level = strings.TrimSpace(g.logLevel)
	if b != nil {
		cli.Namespace = strings.TrimSpace(b.namespace)
		cli.Output.Dir = strings.TrimSpace(b.outputDir)
		cli.Output.File = strings.TrimSpace(b.output)
		if b.noFormat {
			cli.Components.Formatter = "none"
		}
	}
	return cfgpkg.Merge(cfg, cli), nil
}

// report 将一次构建结果输出到终端；错误详情总是写 stderr。
func report(w io.Writer, term *diag.Terminal, res pipeline.Result, err error) {
	if err != nil {
		term.BuildFinish(false, "", 0, 0, res.Duration)
		fprintf(w, "构建失败: %v\n", err)
		return
	}
	term.BuildFinish(true, res.Output, res.Fragments, res.Decls, res.Duration)
	switch {
	case res.FormatError != nil:
		term.FormatResult(false, res.FormatError.Error())
	case res.Formatted:
		term.FormatResult(true, res.FormatOutput)
	}
}

func logFailure(logger *diag.Logger, comp string, err error, start time.Time) {
	code := diag.Classify(err)
	logger.Error(comp, string(code), err.Error(), &start)
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte("有效配置:\n"), b...))
	return err
}
