package yolov8

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/getcharzp/go-yolov8/internal/native"
	"github.com/getcharzp/go-yolov8/internal/native/nativetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeModel 创建一个占位模型文件
func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yolov8n.onnx")
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0644))
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ModelPath = writeModel(t)
	return cfg
}

// detectionsN 生成 n 条可区分的检测结果
func detectionsN(n int) []native.Detection {
	out := make([]native.Detection, n)
	for i := range out {
		out[i] = native.Detection{
			ClassID:    int32(i),
			Confidence: 0.5 + float32(i)/100,
			Box:        native.Rect{X: int32(10 * i), Y: int32(20 * i), Width: 30, Height: 40},
		}
	}
	return out
}

// byLength 检测数量等于图片字节数
func byLength(data []byte, _, _ int32) []native.Detection {
	return detectionsN(len(data))
}

func newTestEngine(t *testing.T, lib *nativetest.Library, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := newEngine(lib, cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Destroy)
	return engine
}

func sentinelBuffer(n int) []Detection {
	buf := make([]Detection, n)
	for i := range buf {
		buf[i] = NewDetection()
	}
	return buf
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"conf below zero", func(c *Config) { c.ConfThreshold = -0.1 }},
		{"conf above one", func(c *Config) { c.ConfThreshold = 1.01 }},
		{"nms NaN", func(c *Config) { c.NMSThreshold = float32(math.NaN()) }},
		{"score above one", func(c *Config) { c.ScoreThreshold = 2 }},
		{"zero width", func(c *Config) { c.InputWidth = 0 }},
		{"negative height", func(c *Config) { c.InputHeight = -640 }},
		{"empty model path", func(c *Config) { c.ModelPath = "" }},
		{"negative max detections", func(c *Config) { c.MaxDetections = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ModelPath = "model.onnx"
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ModelPath = "model.onnx"
		cfg.ConfThreshold, cfg.NMSThreshold, cfg.ScoreThreshold = 0, 1, 1
		cfg.InputWidth, cfg.InputHeight = 1, 1
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewEngineInvalidConfigNeverReachesSDK(t *testing.T) {
	lib := nativetest.New(nil)
	cfg := testConfig(t)
	cfg.ConfThreshold = 3

	_, err := newEngine(lib, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	creates, _, _ := lib.Counts()
	assert.Zero(t, creates)
}

func TestNewEngineMissingModel(t *testing.T) {
	lib := nativetest.New(nil)
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	engine, err := newEngine(lib, cfg)
	assert.Nil(t, engine)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.Zero(t, lib.Live())
}

func TestNewEngineModelIsDirectory(t *testing.T) {
	lib := nativetest.New(nil)
	cfg := DefaultConfig()
	cfg.ModelPath = t.TempDir()

	_, err := newEngine(lib, cfg)
	assert.ErrorIs(t, err, ErrModelLoad)
}

// rejectingLibrary SDK 返回空句柄
type rejectingLibrary struct {
	*nativetest.Library
}

func (rejectingLibrary) Create(native.Config) unsafe.Pointer { return nil }

func TestNewEngineNullHandle(t *testing.T) {
	lib := rejectingLibrary{nativetest.New(nil)}
	cfg := testConfig(t)

	engine, err := newEngine(lib, cfg)
	assert.Nil(t, engine)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestNewEngineMissingLibrary(t *testing.T) {
	cfg := testConfig(t)
	cfg.LibraryPath = filepath.Join(t.TempDir(), "libYOLOv8_SDK.so")

	_, err := NewEngine(cfg)
	assert.ErrorIs(t, err, ErrLibraryLoad)
}

func TestNewEnginePassesConfigToSDK(t *testing.T) {
	lib := nativetest.New(nil)
	engine := newTestEngine(t, lib, func(c *Config) {
		c.ConfThreshold = 0.25
		c.NMSThreshold = 0.45
		c.ScoreThreshold = 0.35
		c.InputWidth = 416
		c.InputHeight = 320
	})

	nc, modelPath, ok := lib.Config(engine.handle)
	require.True(t, ok)
	assert.Equal(t, float32(0.25), nc.ConfThreshold)
	assert.Equal(t, float32(0.45), nc.NMSThreshold)
	assert.Equal(t, float32(0.35), nc.ScoreThreshold)
	assert.Equal(t, int32(416), nc.InpWidth)
	assert.Equal(t, int32(320), nc.InpHeight)
	assert.Equal(t, engine.Config().ModelPath, modelPath)
}

func TestCreateDestroyCyclesDoNotLeak(t *testing.T) {
	lib := nativetest.New(nil)
	cfg := testConfig(t)

	for i := 0; i < 500; i++ {
		engine, err := newEngine(lib, cfg)
		require.NoError(t, err)
		engine.Destroy()
	}

	creates, destroys, _ := lib.Counts()
	assert.Equal(t, 500, creates)
	assert.Equal(t, creates, destroys)
	assert.Zero(t, lib.Live())
}

func TestDestroyIsIdempotent(t *testing.T) {
	lib := nativetest.New(nil)
	engine := newTestEngine(t, lib, nil)

	assert.True(t, engine.Alive())
	engine.Destroy()
	assert.NotPanics(t, engine.Destroy)
	assert.False(t, engine.Alive())

	_, destroys, _ := lib.Counts()
	assert.Equal(t, 1, destroys)
}

func TestUseAfterDestroy(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)
	engine.Destroy()

	assert.ErrorIs(t, engine.Detect([]byte{1, 2, 3}, 10, 10), ErrDestroyed)
	_, err := engine.Retrieve(make([]Detection, 10))
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = engine.Detections()
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = engine.Predict([]byte{1}, 10, 10)
	assert.ErrorIs(t, err, ErrDestroyed)

	_, _, detects := lib.Counts()
	assert.Zero(t, detects)
}

func TestRetrieveFewerThanCapacity(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)
	require.NoError(t, engine.Detect(make([]byte, 3), 810, 1080))

	buf := sentinelBuffer(100)
	total, err := engine.Retrieve(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	want := detectionsN(3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fromNative(want[i]), buf[i])
	}
	for i := 3; i < 100; i++ {
		assert.Equal(t, NewDetection(), buf[i], "slot %d must stay untouched", i)
	}
}

func TestRetrieveTruncated(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)
	require.NoError(t, engine.Detect(make([]byte, 5), 810, 1080))

	buf := sentinelBuffer(2)
	total, err := engine.Retrieve(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 100, lib.LastCapacity, "native buffer keeps the MaxDetections floor")

	want := detectionsN(5)
	assert.Equal(t, fromNative(want[0]), buf[0])
	assert.Equal(t, fromNative(want[1]), buf[1])
}

func TestRetrieveZeroCapacity(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)
	require.NoError(t, engine.Detect(make([]byte, 4), 810, 1080))

	total, err := engine.Retrieve(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 100, lib.LastCapacity)
}

// fullWriteLibrary 忽略传入容量，总是写入全部结果
type fullWriteLibrary struct {
	*nativetest.Library
	results []native.Detection
}

func (l *fullWriteLibrary) GetDetections(handle unsafe.Pointer, buf []native.Detection) int32 {
	l.Library.GetDetections(handle, nil)
	for i, d := range l.results {
		buf[i] = d
	}
	return int32(len(l.results))
}

func TestRetrieveShortBufferWithCapacityIgnoringSDK(t *testing.T) {
	lib := &fullWriteLibrary{Library: nativetest.New(nil), results: detectionsN(5)}
	engine, err := newEngine(lib, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(engine.Destroy)
	require.NoError(t, engine.Detect([]byte{1}, 810, 1080))

	buf := sentinelBuffer(2)
	var total int
	require.NotPanics(t, func() { total, err = engine.Retrieve(buf) })
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, fromNative(lib.results[1]), buf[1])

	require.NotPanics(t, func() { total, err = engine.Retrieve(nil) })
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestRetrieveBeforeDetect(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)

	total, err := engine.Retrieve(make([]Detection, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDetectReplacesPreviousResults(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)

	require.NoError(t, engine.Detect(make([]byte, 5), 810, 1080))
	require.NoError(t, engine.Detect(make([]byte, 2), 810, 1080))

	dets, err := engine.Detections()
	require.NoError(t, err)
	assert.Len(t, dets, 2)

	require.NoError(t, engine.Detect(make([]byte, 2), 810, 1080))
	dets, err = engine.Detections()
	require.NoError(t, err)
	assert.Len(t, dets, 2)
}

func TestDetectionRoundTripIsExact(t *testing.T) {
	raw := native.Detection{
		ClassID:    math.MaxInt32,
		Confidence: math.Float32frombits(0x3f7fffff),
		Box:        native.Rect{X: -5, Y: math.MinInt32, Width: math.MaxInt32, Height: 1},
	}
	lib := nativetest.New(nativetest.Fixed(raw))
	engine := newTestEngine(t, lib, nil)

	dets, err := engine.Predict([]byte{0xff}, 10, 10)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	got := dets[0]
	assert.Equal(t, int(raw.ClassID), got.ClassID)
	assert.Equal(t, math.Float32bits(raw.Confidence), math.Float32bits(got.Confidence))
	assert.Equal(t, int(raw.Box.X), got.Box.X)
	assert.Equal(t, int(raw.Box.Y), got.Box.Y)
	assert.Equal(t, int(raw.Box.Width), got.Box.Width)
	assert.Equal(t, int(raw.Box.Height), got.Box.Height)
}

func TestDetectionsGrowsAndRequeries(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, func(c *Config) { c.MaxDetections = 2 })

	dets, err := engine.Predict(make([]byte, 7), 810, 1080)
	require.NoError(t, err)
	require.Len(t, dets, 7)
	assert.Equal(t, 7, lib.LastCapacity)

	for i, d := range dets {
		assert.Equal(t, i, d.ClassID)
	}
}

func TestPredictNoDetections(t *testing.T) {
	lib := nativetest.New(nil)
	engine := newTestEngine(t, lib, nil)

	dets, err := engine.Predict([]byte("not really an image"), 640, 480)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectRejectsInvalidInput(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, nil)
	require.NoError(t, engine.Detect(make([]byte, 3), 810, 1080))

	assert.ErrorIs(t, engine.Detect(nil, 810, 1080), ErrInvalidImage)
	assert.ErrorIs(t, engine.Detect([]byte{1}, 0, 1080), ErrInvalidImage)
	assert.ErrorIs(t, engine.Detect([]byte{1}, 810, -1), ErrInvalidImage)

	_, _, detects := lib.Counts()
	assert.Equal(t, 1, detects)

	// 被拒绝的检测不会留下上一张图的结果
	total, err := engine.Retrieve(make([]Detection, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestVerifyImageOption(t *testing.T) {
	lib := nativetest.New(byLength)
	engine := newTestEngine(t, lib, func(c *Config) { c.VerifyImage = true })

	err := engine.Detect([]byte("garbage"), 10, 10)
	assert.ErrorIs(t, err, ErrImageDecode)

	data := pngBytes(t, 8, 6)
	dets, err := engine.Predict(data, 8, 6)
	require.NoError(t, err)
	assert.Len(t, dets, len(data))
}

func TestPredictImage(t *testing.T) {
	var gotW, gotH int32
	lib := nativetest.New(func(data []byte, w, h int32) []native.Detection {
		gotW, gotH = w, h
		return detectionsN(1)
	})
	engine := newTestEngine(t, lib, nil)

	dets, err := engine.PredictImage(image.NewRGBA(image.Rect(0, 0, 32, 24)))
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	assert.Equal(t, int32(32), gotW)
	assert.Equal(t, int32(24), gotH)
}

func TestDetectionDefaults(t *testing.T) {
	d := NewDetection()
	assert.Equal(t, -1, d.ClassID)
	assert.Equal(t, float32(-1), d.Confidence)
	assert.Equal(t, Box{}, d.Box)
	assert.False(t, d.Valid())

	d = Detection{ClassID: 0, Confidence: 0.9, Box: Box{X: 1, Y: 2, Width: 3, Height: 4}}
	assert.True(t, d.Valid())
	assert.Equal(t, image.Rect(1, 2, 4, 6), d.Box.Rect())
}
