//go:build !cgo && darwin

package native

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

type puregoLibrary struct {
	lib uintptr

	create        func(cfg Config) unsafe.Pointer
	destroy       func(handle unsafe.Pointer)
	detect        func(handle unsafe.Pointer, data *byte, length, width, height int32)
	getDetections func(handle unsafe.Pointer, buf *Detection, num *int32)
}

// Open 通过 purego 加载 SDK，无需 cgo。
// Config 按值传递依赖 purego 的结构体参数支持，该支持只在 darwin 上可用。
func Open(path string) (Library, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}

	l := &puregoLibrary{lib: lib}
	for _, s := range []struct {
		name string
		fn   any
	}{
		{SymbolCreate, &l.create},
		{SymbolDestroy, &l.destroy},
		{SymbolDetect, &l.detect},
		{SymbolGetDetections, &l.getDetections},
	} {
		sym, err := purego.Dlsym(lib, s.name)
		if err != nil || sym == 0 {
			_ = purego.Dlclose(lib)
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, s.name)
		}
		purego.RegisterFunc(s.fn, sym)
	}
	return l, nil
}

func (l *puregoLibrary) Create(cfg Config) unsafe.Pointer {
	h := l.create(cfg)
	runtime.KeepAlive(cfg.ModelPath)
	return h
}

func (l *puregoLibrary) Destroy(handle unsafe.Pointer) {
	l.destroy(handle)
}

func (l *puregoLibrary) Detect(handle unsafe.Pointer, data []byte, width, height int32) {
	l.detect(handle, bytesPtr(data), int32(len(data)), width, height)
	runtime.KeepAlive(data)
}

func (l *puregoLibrary) GetDetections(handle unsafe.Pointer, buf []Detection) int32 {
	n := int32(len(buf))
	l.getDetections(handle, detectionsPtr(buf), &n)
	runtime.KeepAlive(buf)
	return n
}

func (l *puregoLibrary) Close() error {
	if l.lib == 0 {
		return nil
	}
	err := purego.Dlclose(l.lib)
	l.lib = 0
	return err
}
