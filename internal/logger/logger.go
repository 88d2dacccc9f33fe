package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L 全局日志，Init 之前为 Nop
var L = zap.NewNop()

// Init 按运行模式初始化日志，release 输出 JSON，其余输出彩色开发格式
func Init(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// stdout 留给检测结果输出
	config.OutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	L = logger
	return nil
}

func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
