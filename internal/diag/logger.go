package diag

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：单行 JSON 写入轮转文件（失败时回退 stderr）。
// 事件形状：comp / stage(start|finish|error) / code / dur_ms / count / file_id / kv。
// 所有方法对 nil 接收者安全。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// Options 控制日志器输出位置与级别。
type Options struct {
	// Level: debug|info|warn|error；缺省 info。
	Level string
	// Dir: 轮转日志目录；为空时直接写 stderr。
	Dir string
	// MaxBytes: 单文件轮转阈值；<=0 使用 10MiB。
	MaxBytes int64
	// MaxFiles: 保留的轮转文件数；<=0 使用 5。
	MaxFiles int
}

// NewLogger 通过配置的 level 初始化；日志写入 opts.Dir 下的轮转文件。
func NewLogger(corrID string, opts Options) *Logger {
	lvl := parseLevel(strings.TrimSpace(opts.Level))
	var sink *RotatingFile
	var ws zapcore.WriteSyncer
	if strings.TrimSpace(opts.Dir) != "" {
		sink = NewRotatingFile(opts.Dir, opts.MaxBytes, opts.MaxFiles)
		ws = zapcore.AddSync(&fallbackWriter{primary: sink})
	} else {
		ws = zapcore.Lock(os.Stderr)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, lvl)
	z := zap.New(core)
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z, sink: sink}
}

// NewNop 返回丢弃全部事件的日志器（测试与嵌入场景）。
func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

// Zap 暴露底层 zap.Logger，便于第三方组件复用同一输出。
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新缓冲并关闭文件。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.LevelKey = "level"
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel 判断级别名是否受支持（空串视为默认 info）。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func (l *Logger) log(lv zapcore.Level, comp, stage, msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, msg)
	if ce == nil {
		return
	}
	base := []zap.Field{zap.String("comp", comp), zap.String("stage", stage)}
	ce.Write(append(base, fields...)...)
}

func kvField(kv map[string]string) zap.Field {
	if len(kv) == 0 {
		return zap.Skip()
	}
	return zap.Any("kv", kv)
}

func fileField(fileID string) zap.Field {
	if fileID == "" {
		return zap.Skip()
	}
	return zap.String("file_id", fileID)
}

func durField(since *time.Time) zap.Field {
	if since == nil {
		return zap.Skip()
	}
	return zap.Int64("dur_ms", time.Since(*since).Milliseconds())
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, comp, "start", msg, fileField(fileID), kvField(kv))
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如外部进程输出片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	l.log(zapcore.ErrorLevel, comp, "error", msg, zap.String("code", code), durField(durSince), fileField(fileID), kvField(kv))
}

// Warn 记录可降级的异常（例如格式化失败）。
func (l *Logger) Warn(comp, code, msg string, kv map[string]string) {
	l.log(zapcore.WarnLevel, comp, "error", msg, zap.String("code", code), kvField(kv))
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, comp, "finish", msg, zap.Int64("dur_ms", time.Since(start).Milliseconds()), zap.Int64("count", count))
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, comp, "start", msg, fileField(fileID), kvField(kv))
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, t.comp, "finish", msg,
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()), zap.Int64("count", count), fileField(t.fileID))
}

// Elapsed 返回自 start 以来的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}

// fallbackWriter 在主 sink 写失败时回退 stderr。
type fallbackWriter struct {
	primary *RotatingFile
}

func (w *fallbackWriter) Write(p []byte) (int, error) {
	if _, err := w.primary.Write(p); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		return os.Stderr.Write(p)
	}
	return len(p), nil
}
