package yolov8

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getcharzp/go-yolov8/internal/native"
)

// Pool 多个相互独立的引擎，每个引擎同一时刻只借给一个调用方
type Pool struct {
	lib     native.Library
	ownsLib bool
	engines []*Engine
	idle    chan *Engine

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPool 加载一次 SDK 并创建 size 个引擎
func NewPool(cfg Config, size int) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lib, err := openLibrary(cfg.LibraryPath)
	if err != nil {
		return nil, err
	}
	p, err := newPool(lib, cfg, size)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	p.ownsLib = true
	return p, nil
}

func newPool(lib native.Library, cfg Config, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: 引擎池大小 %d 必须为正数", ErrInvalidConfig, size)
	}

	p := &Pool{
		lib:  lib,
		idle: make(chan *Engine, size),
		done: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		engine, err := newEngine(lib, cfg)
		if err != nil {
			for _, created := range p.engines {
				created.Destroy()
			}
			return nil, fmt.Errorf("创建第 %d 个引擎失败: %w", i+1, err)
		}
		p.engines = append(p.engines, engine)
		p.idle <- engine
	}
	return p, nil
}

// Size 池中引擎数量
func (p *Pool) Size() int {
	return len(p.engines)
}

// Acquire 借出一个空闲引擎，用完必须 Release。
// ctx 只作用于等待空闲引擎，无法打断正在执行的 SDK 调用。
func (p *Pool) Acquire(ctx context.Context) (*Engine, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	select {
	case engine := <-p.idle:
		// Close 与等待同时发生时 select 可能先选中 idle，此时引擎已被销毁
		if p.isClosed() {
			return nil, ErrPoolClosed
		}
		return engine, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release 归还引擎
func (p *Pool) Release(engine *Engine) {
	if engine == nil {
		return
	}
	select {
	case p.idle <- engine:
	default:
	}
}

// Predict 借出一个引擎完成一次检测
func (p *Pool) Predict(ctx context.Context, data []byte, width, height int) ([]Detection, error) {
	engine, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(engine)
	dets, err := engine.Predict(data, width, height)
	if errors.Is(err, ErrDestroyed) && p.isClosed() {
		return nil, ErrPoolClosed
	}
	return dets, err
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close 销毁全部引擎并卸载 SDK，可重复调用
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	for _, engine := range p.engines {
		engine.Destroy()
	}
	if p.ownsLib {
		return p.lib.Close()
	}
	return nil
}
