package yolov8

import "errors"

var (
	// ErrInvalidConfig 阈值越界或输入尺寸非法
	ErrInvalidConfig = errors.New("yolov8: 配置无效")
	// ErrLibraryLoad SDK 动态库加载失败或缺少导出符号
	ErrLibraryLoad = errors.New("yolov8: 加载 SDK 失败")
	// ErrModelLoad 模型文件无法读取，或 SDK 返回空句柄
	ErrModelLoad = errors.New("yolov8: 加载模型失败")
	// ErrDestroyed 引擎已销毁
	ErrDestroyed = errors.New("yolov8: 引擎已销毁")
	// ErrInvalidImage 图片数据为空或尺寸非法
	ErrInvalidImage = errors.New("yolov8: 图片参数无效")
	// ErrImageDecode 开启 VerifyImage 时图片无法解码
	ErrImageDecode = errors.New("yolov8: 图片无法解码")
	// ErrPoolClosed 引擎池已关闭
	ErrPoolClosed = errors.New("yolov8: 引擎池已关闭")
)
