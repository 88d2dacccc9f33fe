package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	yolov8 "github.com/getcharzp/go-yolov8"
	"github.com/getcharzp/go-yolov8/internal/cache"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Detector 执行一次检测，*yolov8.Pool 满足该接口
type Detector interface {
	Predict(ctx context.Context, data []byte, width, height int) ([]yolov8.Detection, error)
}

var _ Detector = (*yolov8.Pool)(nil)

// ResultCache 检测结果缓存
type ResultCache interface {
	Get(ctx context.Context, key string) ([]yolov8.Detection, bool, error)
	Set(ctx context.Context, key string, dets []yolov8.Detection) error
}

type Options struct {
	MaxUploadSize  int64
	AcquireTimeout time.Duration
	Fingerprint    string // 配置指纹，参与缓存键
	Labels         yolov8.Labels
	Build          BuildInfo
}

type Handler struct {
	detector Detector
	cache    ResultCache
	opts     Options
	log      *zap.Logger
}

func NewHandler(detector Detector, resultCache ResultCache, opts Options, log *zap.Logger) *Handler {
	if resultCache == nil {
		resultCache = cache.NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Labels == nil {
		opts.Labels = yolov8.COCOClasses
	}
	return &Handler{
		detector: detector,
		cache:    resultCache,
		opts:     opts,
		log:      log,
	}
}

// Router 注册全部路由
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(h.log))

	// 健康检查和版本信息
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)

	api := r.Group("/api/v1")
	{
		api.POST("/detect", h.Detect)
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.opts.Build.Version,
	})
}

func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.opts.Build)
}

// Detect 处理图片上传并返回检测结果
func (h *Handler) Detect(c *gin.Context) {
	start := time.Now()

	if h.opts.MaxUploadSize > 0 {
		// 额外留出 multipart 头部的空间，文件本身的大小在下面单独检查
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize+1<<20)
	}

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if h.opts.MaxUploadSize > 0 && file.Size > h.opts.MaxUploadSize {
		h.tooLarge(c)
		return
	}

	data, err := readFormFile(file)
	if err != nil {
		h.log.Error("failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "读取上传文件失败",
			Error:   err.Error(),
		})
		return
	}

	info, err := yolov8.ReadImageBytes(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "无法解析图片",
			Error:   err.Error(),
		})
		return
	}

	key := cache.Key(data, h.opts.Fingerprint)
	ctx := c.Request.Context()

	// 检查缓存
	cached, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		h.log.Warn("failed to get cache", zap.String("cache_key", key), zap.Error(err))
	}
	if ok {
		h.log.Debug("cache hit", zap.String("cache_key", key))
		h.respond(c, cached, true, start)
		return
	}

	predictCtx := ctx
	if h.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		predictCtx, cancel = context.WithTimeout(ctx, h.opts.AcquireTimeout)
		defer cancel()
	}

	dets, err := h.detector.Predict(predictCtx, data, info.Width, info.Height)
	if err != nil {
		status := statusOf(err)
		h.log.Error("detect failed",
			zap.String("filename", file.Filename),
			zap.Int("status", status),
			zap.Error(err))
		c.JSON(status, ErrorResponse{
			Message: "检测失败",
			Error:   err.Error(),
		})
		return
	}

	if err := h.cache.Set(ctx, key, dets); err != nil {
		h.log.Warn("failed to set cache", zap.String("cache_key", key), zap.Error(err))
	}

	h.log.Info("detect finished",
		zap.String("filename", file.Filename),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int("count", len(dets)))

	h.respond(c, dets, false, start)
}

func (h *Handler) respond(c *gin.Context, dets []yolov8.Detection, cached bool, start time.Time) {
	c.JSON(http.StatusOK, DetectResponse{
		Success:    true,
		Count:      len(dets),
		Detections: toItems(dets, h.opts.Labels),
		Cached:     cached,
		CostMs:     time.Since(start).Milliseconds(),
	})
}

func (h *Handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.opts.MaxUploadSize/(1024*1024)),
	})
}

// statusOf 检测错误对应的 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, yolov8.ErrPoolClosed), errors.Is(err, yolov8.ErrDestroyed):
		return http.StatusServiceUnavailable
	case errors.Is(err, yolov8.ErrInvalidImage), errors.Is(err, yolov8.ErrImageDecode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
