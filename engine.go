package yolov8

import (
	"fmt"
	"image"
	"math"
	"os"
	"runtime"

	"github.com/getcharzp/go-yolov8/internal/native"
	"go.uber.org/zap"
)

// NewEngine 初始化引擎：加载 SDK 动态库并创建检测器实例
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lib, err := openLibrary(cfg.LibraryPath)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(lib, cfg)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}
	engine.ownsLib = true
	return engine, nil
}

func openLibrary(path string) (native.Library, error) {
	if path == "" {
		path = DefaultLibraryPath()
	}
	lib, err := native.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLibraryLoad, err)
	}
	return lib, nil
}

// newEngine 在已加载的 SDK 上创建实例，不接管 lib 的生命周期
func newEngine(lib native.Library, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s 不是文件", ErrModelLoad, cfg.ModelPath)
	}

	if cfg.MaxDetections == 0 {
		cfg.MaxDetections = defaultMaxDetections
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, path := cfg.toNative()
	handle := lib.Create(nc)
	runtime.KeepAlive(path)
	if handle == nil {
		return nil, fmt.Errorf("%w: SDK 未能创建实例 (%s)", ErrModelLoad, cfg.ModelPath)
	}

	engine := &Engine{
		lib:    lib,
		handle: handle,
		config: cfg,
		logger: logger,
		buf:    make([]native.Detection, cfg.MaxDetections),
	}
	runtime.SetFinalizer(engine, (*Engine).Destroy)

	logger.Debug("yolov8 engine created",
		zap.String("model", cfg.ModelPath),
		zap.Int("input_width", cfg.InputWidth),
		zap.Int("input_height", cfg.InputHeight))
	return engine, nil
}

// Config 返回创建引擎时的配置
func (e *Engine) Config() Config {
	return e.config
}

// Alive 引擎是否尚未销毁
func (e *Engine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// Detect 执行检测，结果缓存在 SDK 内部，覆盖上一次的结果。
//
// data 为完整的编码图片 (jpg/png 等)，由 SDK 负责解码；width、height 为原图尺寸，
// 用于把检测框映射回原图。data 仅在本次调用期间被使用。
// 图片无法解码时 SDK 不报错，之后取回的结果数量为 0。
func (e *Engine) Detect(data []byte, width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detectLocked(data, width, height)
}

func (e *Engine) detectLocked(data []byte, width, height int) error {
	if e.handle == nil {
		return ErrDestroyed
	}

	if err := e.checkImage(data, width, height); err != nil {
		e.rejected = true
		return err
	}

	e.lib.Detect(e.handle, data, int32(width), int32(height))
	e.rejected = false
	return nil
}

func (e *Engine) checkImage(data []byte, width, height int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: 图片数据为空", ErrInvalidImage)
	}
	if len(data) > math.MaxInt32 {
		return fmt.Errorf("%w: 图片数据过大 (%d 字节)", ErrInvalidImage, len(data))
	}
	if width <= 0 || height <= 0 || width > math.MaxInt32 || height > math.MaxInt32 {
		return fmt.Errorf("%w: 原图尺寸 %dx%d 非法", ErrInvalidImage, width, height)
	}
	if e.config.VerifyImage {
		if err := VerifyImage(data); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve 把最近一次检测的结果写入 dst，返回真实检测数量。
//
// 最多写入 len(dst) 条；返回值大于 len(dst) 表示结果被截断，
// 只有前 min(返回值, len(dst)) 条有效。len(dst) 为 0 时仅返回数量。
//
// SDK 收到的缓冲区容量为 max(len(dst), MaxDetections)，并通过 *num 告知。
// SDK 必须遵守传入的 *num；不遵守时检测数量不能超过 MaxDetections，否则会写越界。
func (e *Engine) Retrieve(dst []Detection) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retrieveLocked(dst)
}

func (e *Engine) retrieveLocked(dst []Detection) (int, error) {
	if e.handle == nil {
		return 0, ErrDestroyed
	}
	if e.rejected {
		return 0, nil
	}

	// 交给 SDK 的缓冲区至少 MaxDetections 条，dst 较短时只复制前 len(dst) 条
	size := max(len(dst), e.config.MaxDetections)
	if cap(e.buf) < size {
		e.buf = make([]native.Detection, size)
	}
	raw := e.buf[:size]

	total := int(e.lib.GetDetections(e.handle, raw))
	if total < 0 {
		return 0, fmt.Errorf("yolov8: SDK 返回非法检测数量 %d", total)
	}

	n := min(total, len(dst))
	for i := 0; i < n; i++ {
		dst[i] = fromNative(raw[i])
	}
	if total > len(dst) {
		e.logger.Debug("detections truncated",
			zap.Int("total", total),
			zap.Int("capacity", len(dst)))
	}
	return total, nil
}

// Detections 取回最近一次检测的全部结果。
// 先按 MaxDetections 取回，数量超出时扩容后重新取回。
func (e *Engine) Detections() ([]Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detectionsLocked()
}

// 取回不会清空 SDK 内的结果，允许重复查询
const maxRequery = 3

func (e *Engine) detectionsLocked() ([]Detection, error) {
	capacity := max(e.config.MaxDetections, len(e.buf))

	var dst []Detection
	for attempt := 0; attempt < maxRequery; attempt++ {
		dst = make([]Detection, capacity)
		total, err := e.retrieveLocked(dst)
		if err != nil {
			return nil, err
		}
		if total <= capacity {
			return dst[:total], nil
		}
		capacity = total
	}

	e.logger.Warn("detection count kept growing between queries",
		zap.Int("capacity", len(dst)))
	return dst, nil
}

// Predict 检测并返回全部结果
func (e *Engine) Predict(data []byte, width, height int) ([]Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.detectLocked(data, width, height); err != nil {
		return nil, err
	}
	return e.detectionsLocked()
}

// PredictImage 把图片编码为 PNG 后检测
func (e *Engine) PredictImage(img image.Image) ([]Detection, error) {
	data, err := EncodeImage(img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return e.Predict(data, b.Dx(), b.Dy())
}

// Destroy 释放 SDK 实例，只会真正执行一次
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return
	}
	e.lib.Destroy(e.handle)
	e.handle = nil
	e.buf = nil
	runtime.SetFinalizer(e, nil)

	if e.ownsLib {
		if err := e.lib.Close(); err != nil {
			e.logger.Warn("failed to unload yolov8 sdk", zap.Error(err))
		}
	}
	e.logger.Debug("yolov8 engine destroyed")
}
