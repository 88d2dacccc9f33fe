//go:build !cgo && linux

package native

import (
	"errors"
	"fmt"
)

// ErrCgoRequired linux 上必须启用 cgo
var ErrCgoRequired = errors.New("native: linux 需要 cgo (CGO_ENABLED=1)")

// Open 在没有 cgo 的 linux 上无法调用 SDK：CreateYOLOV8 按值接收 32 字节的 Config，
// SysV 调用约定下该结构体经栈内存传递，purego 不支持结构体参数。
func Open(path string) (Library, error) {
	return nil, fmt.Errorf("%w: 无法加载 %s，SDK 按值接收 Config 结构体", ErrCgoRequired, path)
}
