package yolov8

import (
	"fmt"
	"image"
	"math"
	"sync"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/getcharzp/go-yolov8/internal/native"
	"go.uber.org/zap"
)

// Config YOLOv8 引擎配置
type Config struct {
	ConfThreshold  float32 // 检测置信度阈值 (默认 0.5)
	NMSThreshold   float32 // 非极大值抑制阈值 (默认 0.4)
	ScoreThreshold float32 // 得分阈值 (默认 0.3)
	InputWidth     int     // 模型输入宽度 (默认 640)
	InputHeight    int     // 模型输入高度 (默认 640)
	ModelPath      string  // ONNX 模型路径
	LibraryPath    string  // SDK 动态库路径

	// 可选参数
	MaxDetections int         // (可选) 结果缓冲区初始容量, 默认 100
	VerifyImage   bool        // (可选) 调用 SDK 前先校验图片能否解码
	Logger        *zap.Logger // (可选) 日志, 默认不输出
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ConfThreshold:  0.5,
		NMSThreshold:   0.4,
		ScoreThreshold: 0.3,
		InputWidth:     640,
		InputHeight:    640,
		LibraryPath:    DefaultLibraryPath(),
		MaxDetections:  defaultMaxDetections,
	}
}

const defaultMaxDetections = 100

// Validate 校验阈值和尺寸，不检查模型文件
func (c Config) Validate() error {
	thresholds := []struct {
		name  string
		value float32
	}{
		{"ConfThreshold", c.ConfThreshold},
		{"NMSThreshold", c.NMSThreshold},
		{"ScoreThreshold", c.ScoreThreshold},
	}
	for _, th := range thresholds {
		if math32.IsNaN(th.value) || th.value < 0 || th.value > 1 {
			return fmt.Errorf("%w: %s=%v 不在 [0,1] 内", ErrInvalidConfig, th.name, th.value)
		}
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("%w: 输入尺寸 %dx%d 必须为正数", ErrInvalidConfig, c.InputWidth, c.InputHeight)
	}
	if c.InputWidth > math.MaxInt32 || c.InputHeight > math.MaxInt32 {
		return fmt.Errorf("%w: 输入尺寸 %dx%d 超出 int32", ErrInvalidConfig, c.InputWidth, c.InputHeight)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("%w: 模型路径为空", ErrInvalidConfig)
	}
	if c.MaxDetections < 0 {
		return fmt.Errorf("%w: MaxDetections=%d 不能为负数", ErrInvalidConfig, c.MaxDetections)
	}
	return nil
}

// toNative 转换为 SDK 结构体，返回的路径字节须在调用期间保持存活
func (c Config) toNative() (native.Config, []byte) {
	path := native.CString(c.ModelPath)
	return native.Config{
		ConfThreshold:  c.ConfThreshold,
		NMSThreshold:   c.NMSThreshold,
		ScoreThreshold: c.ScoreThreshold,
		InpWidth:       int32(c.InputWidth),
		InpHeight:      int32(c.InputHeight),
		ModelPath:      &path[0],
	}, path
}

// Box 检测框，左上角坐标加宽高
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect 转换为 image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Detection 目标检测结果
type Detection struct {
	// 分类ID，-1 表示未设置
	//	0: person
	//  1: bicycle
	//  2: car
	// 详细映射参考 COCOClasses
	ClassID    int     `json:"class_id"`
	Confidence float32 `json:"confidence"` // -1 表示未设置
	Box        Box     `json:"box"`
}

// NewDetection 返回未设置的检测结果
func NewDetection() Detection {
	return Detection{ClassID: -1, Confidence: -1}
}

// Valid 是否为 SDK 写入的有效结果
func (d Detection) Valid() bool {
	return d.ClassID >= 0 && d.Confidence >= 0
}

func fromNative(d native.Detection) Detection {
	return Detection{
		ClassID:    int(d.ClassID),
		Confidence: d.Confidence,
		Box: Box{
			X:      int(d.Box.X),
			Y:      int(d.Box.Y),
			Width:  int(d.Box.Width),
			Height: int(d.Box.Height),
		},
	}
}

// Engine YOLOv8 引擎，持有一个 SDK 句柄。
// 同一个 Engine 上的调用会串行执行；不同 Engine 可并发使用。
type Engine struct {
	mu sync.Mutex

	lib     native.Library
	ownsLib bool
	handle  unsafe.Pointer

	config   Config
	logger   *zap.Logger
	buf      []native.Detection // SDK 写入的结果缓冲区，按需扩容
	rejected bool               // 最近一次 Detect 未进入 SDK
}
