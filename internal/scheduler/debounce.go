package scheduler

import (
	"strings"
	"sync"
	"time"
)

// Debouncer 按 key 防抖：窗口内只执行最后一次调度
type Debouncer struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	stopped bool
}

type entry struct {
	timer Timer
	gen   uint64
}

// NewDebouncer 创建防抖器，clock 为 nil 时使用真实时钟
func NewDebouncer(clock Clock) *Debouncer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Debouncer{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Debounce 替换 key 上挂起的定时器；已停止时返回 false
func (d *Debouncer) Debounce(key string, delay time.Duration, fn func()) bool {
	if fn == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if existing, ok := d.entries[key]; ok {
		existing.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.entries[key] = &entry{
		gen:   gen,
		timer: d.clock.AfterFunc(delay, func() { d.fire(key, gen, fn) }),
	}
	return true
}

// Cancel 取消挂起的定时器，返回是否存在
func (d *Debouncer) Cancel(key string) bool {
	key = strings.TrimSpace(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.entries[key]
	if !ok {
		return false
	}
	existing.timer.Stop()
	delete(d.entries, key)
	return true
}

// Pending 判断 key 是否有挂起的定时器
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[strings.TrimSpace(key)]
	return ok
}

// Stop 取消全部定时器，之后的调度被忽略
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, existing := range d.entries {
		existing.timer.Stop()
		delete(d.entries, key)
	}
	d.stopped = true
}

func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	current, ok := d.entries[key]
	if !ok || current.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	d.mu.Unlock()
	fn()
}
