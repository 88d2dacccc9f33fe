// Package nativetest 提供进程内的 SDK 替身，按 native.Library 的约定工作:
// 检测结果缓存在句柄上，Detect 覆盖旧结果，GetDetections 最多写入容量条并返回真实数量。
package nativetest

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/getcharzp/go-yolov8/internal/native"
)

// DetectFunc 根据图片数据生成检测结果
type DetectFunc func(data []byte, width, height int32) []native.Detection

type instance struct {
	cfg        native.Config
	modelPath  string
	detections []native.Detection
}

// Library 模拟 SDK 的实现，可安全并发使用
type Library struct {
	mu sync.Mutex

	// Results 为 nil 时 Detect 不产生任何结果
	Results DetectFunc

	live     map[unsafe.Pointer]*instance
	creates  int
	destroys int
	detects  int
	closed   bool

	// LastCapacity 最近一次 GetDetections 的容量
	LastCapacity int
}

var _ native.Library = (*Library)(nil)

// New 创建替身
func New(results DetectFunc) *Library {
	return &Library{
		Results: results,
		live:    make(map[unsafe.Pointer]*instance),
	}
}

// Fixed 每次检测都返回同一组结果
func Fixed(dets ...native.Detection) DetectFunc {
	return func([]byte, int32, int32) []native.Detection {
		out := make([]native.Detection, len(dets))
		copy(out, dets)
		return out
	}
}

// Create 模型文件无法打开或参数越界时返回 nil
func (l *Library) Create(cfg native.Config) unsafe.Pointer {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := goString(cfg.ModelPath)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	_ = f.Close()
	if cfg.InpWidth <= 0 || cfg.InpHeight <= 0 {
		return nil
	}

	// SDK 不保留 onnx_path 指针
	cfg.ModelPath = nil
	inst := &instance{cfg: cfg, modelPath: path}
	// 实例地址充当不透明句柄
	h := unsafe.Pointer(inst)
	l.live[h] = inst
	l.creates++
	return h
}

// Destroy 重复销毁或未知句柄直接 panic，便于测试发现生命周期错误
func (l *Library) Destroy(handle unsafe.Pointer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.live[handle]; !ok {
		panic(fmt.Sprintf("nativetest: destroy of unknown handle %p", handle))
	}
	delete(l.live, handle)
	l.destroys++
}

// Detect 覆盖该句柄上的检测结果
func (l *Library) Detect(handle unsafe.Pointer, data []byte, width, height int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inst := l.mustLive(handle)
	l.detects++
	inst.detections = nil
	if l.Results != nil && len(data) > 0 {
		inst.detections = l.Results(data, width, height)
	}
}

// GetDetections 最多写入 len(buf) 条记录，返回真实数量
func (l *Library) GetDetections(handle unsafe.Pointer, buf []native.Detection) int32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	inst := l.mustLive(handle)
	l.LastCapacity = len(buf)
	copy(buf, inst.detections)
	return int32(len(inst.detections))
}

// Close 卸载替身
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Live 当前存活的句柄数
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Counts 返回 create、destroy、detect 的调用次数
func (l *Library) Counts() (creates, destroys, detects int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates, l.destroys, l.detects
}

// Closed 是否已调用 Close
func (l *Library) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Config 返回句柄创建时收到的配置和模型路径
func (l *Library) Config(handle unsafe.Pointer) (native.Config, string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.live[handle]
	if !ok {
		return native.Config{}, "", false
	}
	return inst.cfg, inst.modelPath, true
}

func (l *Library) mustLive(handle unsafe.Pointer) *instance {
	inst, ok := l.live[handle]
	if !ok {
		panic(fmt.Sprintf("nativetest: use of unknown handle %p", handle))
	}
	return inst
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
