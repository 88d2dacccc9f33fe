//go:build windows

package native

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
)

type windowsLibrary struct {
	dll *syscall.DLL

	// x64 调用约定下超过 8 字节的结构体以隐藏指针传递，CreateYOLOV8 直接走 SyscallN
	create uintptr

	destroy       func(handle unsafe.Pointer)
	detect        func(handle unsafe.Pointer, data *byte, length, width, height int32)
	getDetections func(handle unsafe.Pointer, buf *Detection, num *int32)
}

// Open 加载 YOLOv8_SDK.dll 并解析四个导出符号
func Open(path string) (Library, error) {
	dll, err := syscall.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("LoadDLL %s: %w", path, err)
	}

	l := &windowsLibrary{dll: dll}
	procs := make(map[string]uintptr, 4)
	for _, name := range []string{SymbolCreate, SymbolDestroy, SymbolDetect, SymbolGetDetections} {
		p, err := dll.FindProc(name)
		if err != nil {
			_ = dll.Release()
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
		}
		procs[name] = p.Addr()
	}

	l.create = procs[SymbolCreate]
	purego.RegisterFunc(&l.destroy, procs[SymbolDestroy])
	purego.RegisterFunc(&l.detect, procs[SymbolDetect])
	purego.RegisterFunc(&l.getDetections, procs[SymbolGetDetections])
	return l, nil
}

func (l *windowsLibrary) Create(cfg Config) unsafe.Pointer {
	c := cfg
	r, _, _ := purego.SyscallN(l.create, uintptr(unsafe.Pointer(&c)))
	runtime.KeepAlive(&c)
	runtime.KeepAlive(cfg.ModelPath)
	return *(*unsafe.Pointer)(unsafe.Pointer(&r))
}

func (l *windowsLibrary) Destroy(handle unsafe.Pointer) {
	l.destroy(handle)
}

func (l *windowsLibrary) Detect(handle unsafe.Pointer, data []byte, width, height int32) {
	l.detect(handle, bytesPtr(data), int32(len(data)), width, height)
	runtime.KeepAlive(data)
}

func (l *windowsLibrary) GetDetections(handle unsafe.Pointer, buf []Detection) int32 {
	n := int32(len(buf))
	l.getDetections(handle, detectionsPtr(buf), &n)
	runtime.KeepAlive(buf)
	return n
}

func (l *windowsLibrary) Close() error {
	if l.dll == nil {
		return nil
	}
	err := l.dll.Release()
	l.dll = nil
	return err
}
