package yolov8

import (
	"fmt"
	"image"
	"image/color"

	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor      = color.RGBA{G: 255, A: 255}
	boxThickness  = 2
	labelOffsetY  = 10
	labelFontFace = basicfont.Face7x13
)

// Annotate 在图片副本上绘制检测框和 "类别 置信度" 标签
func Annotate(img image.Image, detections []Detection, labels Labels) *image.RGBA {
	tagImg := image.NewRGBA(img.Bounds())
	draw.Draw(tagImg, img.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, det := range detections {
		if !det.Valid() {
			continue
		}
		rect := det.Box.Rect().Add(img.Bounds().Min)
		imageutil.DrawThickRectOutline(tagImg, rect, boxColor, boxThickness)

		label := fmt.Sprintf("%s %.2f", labels.Name(det.ClassID), det.Confidence)
		drawLabel(tagImg, rect.Min.X, rect.Min.Y-labelOffsetY, label)
	}
	return tagImg
}

// drawLabel 标签超出上边界时画在框内
func drawLabel(img *image.RGBA, x, y int, text string) {
	if y < img.Bounds().Min.Y+labelFontFace.Ascent {
		y = img.Bounds().Min.Y + labelFontFace.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(boxColor),
		Face: labelFontFace,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
