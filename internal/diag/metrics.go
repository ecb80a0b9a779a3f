package diag

import (
	"sort"
	"sync"
)

// 进程内最小指标（无导出端点）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
// 监听模式结束时读取快照输出汇总。

var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add("op_total{"+comp+","+stage+","+result+"}", 1) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add("error_total{"+comp+","+code+"}", 1) }

// ObserveDuration 记录阶段耗时（毫秒，累计）。
func ObserveDuration(comp, stage string, durMS int64) {
	add("op_duration_ms{"+comp+","+stage+"}", durMS)
}

func add(key string, v int64) {
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}

// Counter 读取单个计数；不存在时为 0。
func Counter(key string) int64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return counters[key]
}

// Metric 为快照中的一项。
type Metric struct {
	Key   string
	Value int64
}

// Snapshot 返回按键排序的全部计数。
func Snapshot() []Metric {
	metricsMu.Lock()
	out := make([]Metric, 0, len(counters))
	for k, v := range counters {
		out = append(out, Metric{Key: k, Value: v})
	}
	metricsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResetMetrics 清空计数（测试用）。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
