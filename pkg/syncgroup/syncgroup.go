package syncgroup

import (
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，自动管理 Add() 和 Done()
// 先 Add 注册函数，再 Run 一次性启动，Wait 等待全部结束
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	funcs   []func()
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个 goroutine 函数，在下一次 Run 时启动
func (w *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.funcs = append(w.funcs, fn)
}

// Run 启动所有已添加的函数并清空待启动列表
func (w *SyncGroup) Run() {
	w.mu.Lock()
	fns := w.funcs
	w.funcs = nil
	w.running += len(fns)
	w.wg.Add(len(fns))
	w.mu.Unlock()

	for _, fn := range fns {
		go func(doFunc func()) {
			defer func() {
				w.mu.Lock()
				w.running--
				w.mu.Unlock()
				w.wg.Done()
			}()
			doFunc()
		}(fn)
	}
}

// Running 当前仍在运行的函数数量
func (w *SyncGroup) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Wait 等待所有已启动的函数完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
