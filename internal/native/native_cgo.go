//go:build cgo && (linux || darwin)

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

typedef struct {
	float confThreshold;
	float nmsThreshold;
	float scoreThreshold;
	int inpWidth;
	int inpHeight;
	const char* onnx_path;
} yolo_config;

typedef struct {
	int x;
	int y;
	int width;
	int height;
} yolo_rect;

typedef struct {
	int class_id;
	float confidence;
	yolo_rect box;
} yolo_detection;

typedef void* (*create_fn)(yolo_config);
typedef void (*destroy_fn)(void*);
typedef void (*detect_fn)(void*, unsigned char*, int, int, int);
typedef void (*get_detections_fn)(void*, yolo_detection*, int*);

static void* call_create(void* fn, yolo_config cfg) {
	return ((create_fn)fn)(cfg);
}

static void call_destroy(void* fn, void* h) {
	((destroy_fn)fn)(h);
}

static void call_detect(void* fn, void* h, unsigned char* data, int length, int width, int height) {
	((detect_fn)fn)(h, data, length, width, height);
}

static int call_get_detections(void* fn, void* h, yolo_detection* buf, int capacity) {
	int n = capacity;
	((get_detections_fn)fn)(h, buf, &n);
	return n;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Go 结构体与 C 声明大小不一致时编译失败
var (
	_ [unsafe.Sizeof(C.yolo_config{}) - unsafe.Sizeof(Config{})]byte
	_ [unsafe.Sizeof(Config{}) - unsafe.Sizeof(C.yolo_config{})]byte
	_ [unsafe.Sizeof(C.yolo_detection{}) - unsafe.Sizeof(Detection{})]byte
	_ [unsafe.Sizeof(Detection{}) - unsafe.Sizeof(C.yolo_detection{})]byte
)

type cgoLibrary struct {
	lib           unsafe.Pointer
	create        unsafe.Pointer
	destroy       unsafe.Pointer
	detect        unsafe.Pointer
	getDetections unsafe.Pointer
}

// Open 通过 dlopen 加载 SDK 并解析四个导出符号
func Open(path string) (Library, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	lib := C.dlopen(cPath, C.RTLD_NOW|C.RTLD_LOCAL)
	if lib == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}

	l := &cgoLibrary{lib: lib}
	for _, s := range []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{SymbolCreate, &l.create},
		{SymbolDestroy, &l.destroy},
		{SymbolDetect, &l.detect},
		{SymbolGetDetections, &l.getDetections},
	} {
		cName := C.CString(s.name)
		sym := C.dlsym(lib, cName)
		C.free(unsafe.Pointer(cName))
		if sym == nil {
			C.dlclose(lib)
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, s.name)
		}
		*s.dst = sym
	}
	return l, nil
}

func (l *cgoLibrary) Create(cfg Config) unsafe.Pointer {
	var cModel *C.char
	if cfg.ModelPath != nil {
		cModel = C.CString(C.GoString((*C.char)(unsafe.Pointer(cfg.ModelPath))))
		defer C.free(unsafe.Pointer(cModel))
	}
	c := C.yolo_config{
		confThreshold:  C.float(cfg.ConfThreshold),
		nmsThreshold:   C.float(cfg.NMSThreshold),
		scoreThreshold: C.float(cfg.ScoreThreshold),
		inpWidth:       C.int(cfg.InpWidth),
		inpHeight:      C.int(cfg.InpHeight),
		onnx_path:      cModel,
	}
	return C.call_create(l.create, c)
}

func (l *cgoLibrary) Destroy(handle unsafe.Pointer) {
	C.call_destroy(l.destroy, handle)
}

func (l *cgoLibrary) Detect(handle unsafe.Pointer, data []byte, width, height int32) {
	C.call_detect(l.detect, handle,
		(*C.uchar)(unsafe.Pointer(bytesPtr(data))), C.int(len(data)),
		C.int(width), C.int(height))
}

func (l *cgoLibrary) GetDetections(handle unsafe.Pointer, buf []Detection) int32 {
	n := C.call_get_detections(l.getDetections, handle,
		(*C.yolo_detection)(unsafe.Pointer(detectionsPtr(buf))), C.int(len(buf)))
	return int32(n)
}

func (l *cgoLibrary) Close() error {
	if l.lib == nil {
		return nil
	}
	if C.dlclose(l.lib) != 0 {
		return fmt.Errorf("dlclose: %s", C.GoString(C.dlerror()))
	}
	l.lib = nil
	return nil
}
