package server

import yolov8 "github.com/getcharzp/go-yolov8"

type DetectionItem struct {
	ClassID    int        `json:"class_id"`
	Label      string     `json:"label"`
	Confidence float32    `json:"confidence"`
	Box        yolov8.Box `json:"box"`
}

type DetectResponse struct {
	Success    bool            `json:"success"`
	Count      int             `json:"count"`
	Detections []DetectionItem `json:"detections"`
	Cached     bool            `json:"cached"`
	CostMs     int64           `json:"cost_ms"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// BuildInfo 构建信息，由 main 通过 -ldflags 注入
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

func toItems(dets []yolov8.Detection, labels yolov8.Labels) []DetectionItem {
	items := make([]DetectionItem, 0, len(dets))
	for _, d := range dets {
		items = append(items, DetectionItem{
			ClassID:    d.ClassID,
			Label:      labels.Name(d.ClassID),
			Confidence: d.Confidence,
			Box:        d.Box,
		})
	}
	return items
}
