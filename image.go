package yolov8

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// EncodeImage 把图片编码为 PNG 字节，供 Detect 使用
func EncodeImage(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: 图片为空", ErrInvalidImage)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("编码图片失败: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageInfo 只解析图片头得到的信息
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// ReadImageBytes 从图片头解析原图尺寸，不解码像素
func ReadImageBytes(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: 图片数据为空", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// ReadImageFile 读取图片文件的原始字节和原图尺寸
func ReadImageFile(path string) ([]byte, ImageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("读取图片失败: %w", err)
	}
	info, err := ReadImageBytes(data)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	return data, info, nil
}

// VerifyImage 校验数据能否被解码为图片。
// SDK 对无法解码的图片只会返回 0 个结果，开启校验后可以把这种情况区分出来。
func VerifyImage(data []byte) error {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return nil
}
