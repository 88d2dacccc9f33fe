package yolov8

import (
	"fmt"

	"github.com/getcharzp/go-yolov8/internal/util"
)

// COCOClasses yolov8n.onnx 使用的 80 个 COCO 类别
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// Labels 类别ID到名称的映射
type Labels []string

// LoadLabels 加载类别文件，每行一个名称，行号即类别ID
func LoadLabels(path string) (Labels, error) {
	lines, err := util.LoadLines(path)
	if err != nil {
		return nil, fmt.Errorf("加载类别文件失败: %w", err)
	}
	return Labels(lines), nil
}

// Name 返回类别名称，未知ID返回 class_<id>
func (l Labels) Name(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}
