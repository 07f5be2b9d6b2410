package breaker

// Window 基于计数的滑动窗口，使用环形缓冲区保存最近 size 次调用结果
//
// Window 不是并发安全的，由所属的 CircuitBreaker 加锁保护。
type Window struct {
	size     int
	buffer   []bool // true=失败
	index    int    // 下一个写入位置
	total    int    // 已记录数，不超过 size
	failures int
}

// NewWindow 创建滑动窗口，size 小于 1 时按 1 处理
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		size:   size,
		buffer: make([]bool, size),
	}
}

// Record 记录一次结果，窗口已满时覆盖最旧的一条
func (w *Window) Record(failed bool) {
	if w.total == w.size && w.buffer[w.index] {
		w.failures--
	}

	w.buffer[w.index] = failed
	if failed {
		w.failures++
	}

	w.index = (w.index + 1) % w.size
	if w.total < w.size {
		w.total++
	}
}

// FailureRate 失败率，百分比
func (w *Window) FailureRate() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.total)
}

// Total 窗口内调用数
func (w *Window) Total() int {
	return w.total
}

// Failures 窗口内失败数
func (w *Window) Failures() int {
	return w.failures
}

// Size 窗口大小
func (w *Window) Size() int {
	return w.size
}

// Reset 清空窗口
func (w *Window) Reset() {
	w.index = 0
	w.total = 0
	w.failures = 0
	clear(w.buffer)
}
