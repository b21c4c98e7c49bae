// Package dispatcher 提供主线程回调队列
//
// 任意 goroutine 都可以 Enqueue，只有主循环（每帧一次）调用 Drain 执行。
// 回调按入队顺序串行执行，不会与主循环中的其他逻辑并发。
package dispatcher

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/decker502/farm/pkg/logging"
	"github.com/decker502/farm/pkg/metrics"
)

// Dispatcher 主线程回调队列
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	spare  []func() // 上次 Drain 用过的切片，复用以减少分配
	logger zerolog.Logger
}

// New 创建回调队列
func New(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  make([]func(), 0, 16),
		logger: logging.Component(logger, "dispatcher"),
	}
}

// Enqueue 添加一个待主线程执行的回调
// 参数:
//   - fn: 回调函数，为 nil 时丢弃并记录警告
//
// 返回:
//   - bool: 是否成功入队
func (d *Dispatcher) Enqueue(fn func()) bool {
	if fn == nil {
		d.logger.Warn().Msg("attempted to enqueue a nil callback")
		return false
	}

	d.mu.Lock()
	d.queue = append(d.queue, fn)
	n := len(d.queue)
	d.mu.Unlock()

	metrics.SetDispatcherQueueDepth(n)
	return true
}

// Drain 执行本帧开始前已入队的全部回调，返回执行数量
// 进入时整体取走队列，执行期间新入队的回调留到下一帧，
// 因此每帧重新入队自身的回调不会造成死循环。
// 单个回调 panic 会被恢复并记录，不影响后续回调。
func (d *Dispatcher) Drain() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = d.spare[:0]
	d.spare = nil
	d.mu.Unlock()

	for i, fn := range batch {
		d.run(fn)
		batch[i] = nil
	}

	d.mu.Lock()
	if d.spare == nil {
		d.spare = batch[:0]
	}
	n := len(d.queue)
	d.mu.Unlock()

	metrics.SetDispatcherQueueDepth(n)
	return len(batch)
}

// Len 返回等待执行的回调数量
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDispatcherPanic()
			d.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("callback panicked during drain")
		}
	}()
	fn()
}
