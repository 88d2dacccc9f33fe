// Package native 封装 YOLOv8 SDK 动态库导出的四个 C 接口。
//
// 结构体布局必须与 SDK 头文件逐字段一致:
//
//	struct Config {
//	    float confThreshold;
//	    float nmsThreshold;
//	    float scoreThreshold;
//	    int inpWidth;
//	    int inpHeight;
//	    const char* onnx_path;
//	};
//
//	struct Detection {
//	    int class_id;
//	    float confidence;
//	    cv::Rect box; // int x, y, width, height
//	};
//
// 句柄由 SDK 持有，Go 侧只保存不透明指针，从不解引用。
package native

import (
	"errors"
	"unsafe"
)

// Config 对应 SDK 的 Config 结构体，按 C 的自然对齐排列
type Config struct {
	ConfThreshold  float32
	NMSThreshold   float32
	ScoreThreshold float32
	InpWidth       int32
	InpHeight      int32
	ModelPath      *byte // 以 NUL 结尾，仅在 CreateYOLOV8 调用期间有效
}

// Rect 对应 cv::Rect
type Rect struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// Detection 对应 SDK 的 Detection 结构体
type Detection struct {
	ClassID    int32
	Confidence float32
	Box        Rect
}

// DetectionSize 单条检测记录的字节数
const DetectionSize = int(unsafe.Sizeof(Detection{}))

// 导出符号名
const (
	SymbolCreate        = "CreateYOLOV8"
	SymbolDestroy       = "DestroyYOLOV8"
	SymbolDetect        = "DetectYOLOV8"
	SymbolGetDetections = "GetDetectionsYOLOV8"
)

// ErrSymbolNotFound 动态库缺少导出符号
var ErrSymbolNotFound = errors.New("native: symbol not found")

// Library 动态库的四个入口。
//
// GetDetections 把 len(buf) 作为容量传给 SDK，SDK 最多写入 len(buf) 条记录，
// 返回值为真实检测数量，可能大于 len(buf)。
type Library interface {
	Create(cfg Config) unsafe.Pointer
	Destroy(handle unsafe.Pointer)
	Detect(handle unsafe.Pointer, data []byte, width, height int32)
	GetDetections(handle unsafe.Pointer, buf []Detection) int32
	Close() error
}

// CString 返回以 NUL 结尾的字节切片，调用方需保证其在调用期间存活
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// detectionsPtr 返回缓冲区首地址，空缓冲区返回 nil
func detectionsPtr(buf []Detection) *Detection {
	if len(buf) == 0 {
		return nil
	}
	return &buf[0]
}

func bytesPtr(data []byte) *byte {
	if len(data) == 0 {
		return nil
	}
	return &data[0]
}
