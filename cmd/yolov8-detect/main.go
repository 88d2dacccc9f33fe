package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"
	yolov8 "github.com/getcharzp/go-yolov8"
	"github.com/getcharzp/go-yolov8/internal/config"
	"github.com/getcharzp/go-yolov8/internal/logger"
	"github.com/spf13/pflag"
	"github.com/up-zero/gotool/imageutil"
	"go.uber.org/zap"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "yolov8-detect: %v\n", err)
		}
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("yolov8-detect", pflag.ContinueOnError)
	fs.String("config", "", "YAML 配置文件")
	fs.StringP("image", "i", "", "待检测图片")
	fs.StringP("out", "o", "", "标注结果输出路径 (可选)")
	fs.String("labels", "", "类别名称文件，每行一个 (默认 COCO)")
	fs.String("model", "", "ONNX 模型路径")
	fs.String("lib", "", "SDK 动态库路径")
	fs.Float32("conf", 0, "置信度阈值")
	fs.Float32("nms", 0, "NMS 阈值")
	fs.Float32("score", 0, "得分阈值")
	fs.Bool("verify", false, "调用 SDK 前先校验图片")
	fs.BoolP("version", "v", false, "打印版本信息")
	fs.Bool("debug", false, "输出调试日志")
	return fs
}

func run(args []string, stdout io.Writer) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}

	if v, _ := fs.GetBool("version"); v {
		fmt.Fprintf(stdout, "yolov8-detect %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return nil
	}

	imagePath, _ := fs.GetString("image")
	if imagePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: yolov8-detect --image bus.jpg [--model yolov8n.onnx] [--out result.png]")
		fs.PrintDefaults()
		return errUsage
	}

	mode := "release"
	if debug, _ := fs.GetBool("debug"); debug {
		mode = "debug"
	}
	if err := logger.Init(mode); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	configPath, _ := fs.GetString("config")
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.Detector.EngineConfig()
	if err != nil {
		return err
	}
	engineCfg.Logger = logger.L
	labels, err := cfg.Detector.Labels()
	if err != nil {
		return fmt.Errorf("加载类别文件失败: %w", err)
	}

	start := time.Now()
	engine, err := yolov8.NewEngine(engineCfg)
	if err != nil {
		return fmt.Errorf("创建 YOLOv8 引擎失败: %w", err)
	}
	defer engine.Destroy()

	data, info, err := yolov8.ReadImageFile(imagePath)
	if err != nil {
		return fmt.Errorf("加载图像失败: %w", err)
	}

	dets, err := engine.Predict(data, info.Width, info.Height)
	if err != nil {
		return fmt.Errorf("运行检测失败: %w", err)
	}
	logger.L.Info("detect finished",
		zap.String("image", imagePath),
		zap.Int("count", len(dets)),
		zap.Duration("cost", time.Since(start)))

	printReport(stdout, dets, labels)

	if out, _ := fs.GetString("out"); out != "" {
		if err := saveAnnotated(imagePath, out, dets, labels); err != nil {
			return err
		}
		logger.L.Info("annotated image saved", zap.String("path", out))
	}
	return nil
}

// printReport 每个结果一行
func printReport(w io.Writer, dets []yolov8.Detection, labels yolov8.Labels) {
	for _, d := range dets {
		fmt.Fprintf(w, "Class ID: %d (%s), Confidence: %.4f, Box: [%d, %d, %d, %d]\n",
			d.ClassID, labels.Name(d.ClassID), d.Confidence,
			d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
	}
	fmt.Fprintf(w, "Total: %d\n", len(dets))
}

func saveAnnotated(src, dst string, dets []yolov8.Detection, labels yolov8.Labels) error {
	img, err := imageutil.Open(src)
	if err != nil {
		return fmt.Errorf("加载图像失败: %w", err)
	}
	if err := imaging.Save(yolov8.Annotate(img, dets, labels), dst); err != nil {
		return fmt.Errorf("保存标注图像失败: %w", err)
	}
	return nil
}
