package config

import (
	"fmt"
	"strings"
	"time"

	yolov8 "github.com/getcharzp/go-yolov8"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/up-zero/gotool/convertutil"
)

type Config struct {
	Detector DetectorConfig `mapstructure:"detector"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DetectorConfig 字段名与 yolov8.Config 保持一致，便于直接拷贝
type DetectorConfig struct {
	ConfThreshold  float32 `mapstructure:"conf_threshold"`
	NMSThreshold   float32 `mapstructure:"nms_threshold"`
	ScoreThreshold float32 `mapstructure:"score_threshold"`
	InputWidth     int     `mapstructure:"input_width"`
	InputHeight    int     `mapstructure:"input_height"`
	ModelPath      string  `mapstructure:"model_path"`
	LibraryPath    string  `mapstructure:"library_path"`
	MaxDetections  int     `mapstructure:"max_detections"`
	VerifyImage    bool    `mapstructure:"verify_image"`
	LabelsPath     string  `mapstructure:"labels_path"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PoolSize       int           `mapstructure:"pool_size"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	MaxUploadSize  int64         `mapstructure:"max_upload_size"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// flagKeys 命令行参数到配置项的映射
var flagKeys = map[string]string{
	"model":     "detector.model_path",
	"lib":       "detector.library_path",
	"labels":    "detector.labels_path",
	"conf":      "detector.conf_threshold",
	"nms":       "detector.nms_threshold",
	"score":     "detector.score_threshold",
	"verify":    "detector.verify_image",
	"port":      "server.port",
	"mode":      "server.mode",
	"pool-size": "server.pool_size",
	"redis":     "redis.addr",
}

// Load 从 YAML 文件加载配置，path 为空时只使用默认值、环境变量和命令行参数。
// 环境变量前缀为 YOLOV8_，例如 YOLOV8_DETECTOR_MODEL_PATH。
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("YOLOV8")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	// 读取配置文件
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 加载配置，文件读取失败时退回默认值
func New(path string, flags *pflag.FlagSet) *Config {
	cfg, err := Load(path, flags)
	if err != nil {
		// 如果加载失败，只保留默认值、环境变量和命令行参数
		cfg, _ = Load("", flags)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := yolov8.DefaultConfig()
	v.SetDefault("detector.conf_threshold", d.ConfThreshold)
	v.SetDefault("detector.nms_threshold", d.NMSThreshold)
	v.SetDefault("detector.score_threshold", d.ScoreThreshold)
	v.SetDefault("detector.input_width", d.InputWidth)
	v.SetDefault("detector.input_height", d.InputHeight)
	v.SetDefault("detector.model_path", "./Models/yolov8n.onnx")
	v.SetDefault("detector.library_path", d.LibraryPath)
	v.SetDefault("detector.max_detections", d.MaxDetections)
	v.SetDefault("detector.verify_image", false)
	v.SetDefault("detector.labels_path", "")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.pool_size", 2)
	v.SetDefault("server.acquire_timeout", 5*time.Second)
	v.SetDefault("server.max_upload_size", 10*1024*1024)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
}

// EngineConfig 转换为引擎配置
func (d DetectorConfig) EngineConfig() (yolov8.Config, error) {
	cfg := yolov8.DefaultConfig()
	if err := convertutil.CopyProperties(d, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to copy detector config: %w", err)
	}
	return cfg, nil
}

// Labels 加载类别名称，未配置时使用 COCO 类别
func (d DetectorConfig) Labels() (yolov8.Labels, error) {
	if d.LabelsPath == "" {
		return yolov8.COCOClasses, nil
	}
	return yolov8.LoadLabels(d.LabelsPath)
}
