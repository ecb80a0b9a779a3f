package watch

import (
	"context"
	"sync"
	"time"
)

// BuildFunc 执行一次构建；reason 为触发原因（最近一次触发的路径或 "initial"）。
type BuildFunc func(ctx context.Context, reason string) error

// Coalescer 将任意多次触发串行化为构建调用：
// 同一时刻至多一次构建在执行，其后至多排队一次。
// 单槽位（容量 1 的通道）承载“有待处理的变更”，多余触发被合并。
type Coalescer struct {
	debounce time.Duration
	slot     chan struct{}

	mu       sync.Mutex
	reason   string
	runs     int
	failures int
}

// NewCoalescer 创建合并器；debounce 为固定窗口长度，<=0 表示不去抖。
func NewCoalescer(debounce time.Duration) *Coalescer {
	return &Coalescer{debounce: debounce, slot: make(chan struct{}, 1)}
}

// Trigger 标记一次变更；不阻塞。
func (c *Coalescer) Trigger(reason string) {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	select {
	case c.slot <- struct{}{}:
	default:
		// 已有待处理变更
	}
}

// Run 循环消费槽位直到 ctx 取消。构建失败仅计数，不中断循环。
// 去抖为固定窗口：从窗口内首次触发起计时 debounce，期间的触发不会延长窗口；
// 到期后立即构建，窗口之后的触发进入下一轮。
// onDone 在每次构建后调用（可为 nil）。
func (c *Coalescer) Run(ctx context.Context, build BuildFunc, onDone func(reason string, err error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.slot:
		}
		if c.debounce > 0 {
			t := time.NewTimer(c.debounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			// 去抖窗口内的触发并入本次构建
			select {
			case <-c.slot:
			default:
			}
		}
		c.mu.Lock()
		reason := c.reason
		c.reason = ""
		c.mu.Unlock()

		err := build(ctx, reason)
		c.mu.Lock()
		c.runs++
		if err != nil {
			c.failures++
		}
		c.mu.Unlock()
		if onDone != nil {
			onDone(reason, err)
		}
	}
}

// Stats 返回累计构建次数与失败次数。
func (c *Coalescer) Stats() (runs, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs, c.failures
}
