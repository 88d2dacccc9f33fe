package yolov8

import (
	"fmt"
	"runtime"
)

const (
	libraryDir  = "./lib/"
	libraryName = "YOLOv8_SDK"
)

// DefaultLibraryPath 根据运行时环境判断加载哪个 SDK 动态库
func DefaultLibraryPath() string {
	return libraryDir + libraryFile(runtime.GOOS, runtime.GOARCH)
}

// libraryFile 各平台的 SDK 文件名
//
//	windows: YOLOv8_SDK.dll
//	linux:   libYOLOv8_SDK_<arch>.so
//	darwin:  libYOLOv8_SDK_<arch>.dylib
func libraryFile(goos, goarch string) string {
	switch goos {
	case "windows":
		return libraryName + ".dll"
	case "darwin":
		return fmt.Sprintf("lib%s_%s.dylib", libraryName, goarch)
	case "linux":
		return fmt.Sprintf("lib%s_%s.so", libraryName, goarch)
	default:
		return "lib" + libraryName + "_amd64.so" // 默认返回 linux amd64
	}
}
