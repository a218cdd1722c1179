package inference

import "encoding/json"

// ImageSize as reported by the ML service
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClassificationResult is the single-seed response of the ML service.
// Note is only set on locally generated fallbacks.
type ClassificationResult struct {
	Prediction       string          `json:"prediction"`
	Confidence       float64         `json:"confidence"`
	ProcessingTime   float64         `json:"processingTime"`
	ModelVersion     string          `json:"modelVersion"`
	ImageSize        *ImageSize      `json:"imageSize,omitempty"`
	Timestamp        string          `json:"timestamp"`
	AttentionMap     string          `json:"attentionMap,omitempty"`
	FeatureAnalysis  json.RawMessage `json:"featureAnalysis,omitempty"`
	DetailedAnalysis json.RawMessage `json:"detailedAnalysis,omitempty"`
	Note             string          `json:"note,omitempty"`
}

// Mock reports whether the result was synthesized instead of coming from the service.
func (c ClassificationResult) Mock() bool { return c.Note != "" }

// BBox in source-image pixels
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is one located and classified seed.
type Detection struct {
	SeedNumber          int             `json:"seedNumber"`
	BBox                BBox            `json:"bbox"`
	DetectionConfidence float64         `json:"detectionConfidence"`
	Classification      string          `json:"classification"`
	ViabilityConfidence float64         `json:"viabilityConfidence"`
	SeedImage           string          `json:"seedImage"`
	AttentionMap        string          `json:"attentionMap,omitempty"`
	FeatureAnalysis     json.RawMessage `json:"featureAnalysis,omitempty"`
	DetailedAnalysis    json.RawMessage `json:"detailedAnalysis,omitempty"`
}

// DetectionResult is the multi-seed response of the ML service.
type DetectionResult struct {
	TotalSeeds     int         `json:"totalSeeds"`
	ViableSeeds    int         `json:"viableSeeds"`
	NonViableSeeds int         `json:"nonViableSeeds"`
	ViabilityRate  float64     `json:"viabilityRate"`
	Detections     []Detection `json:"detections"`
	AnnotatedImage string      `json:"annotatedImage"`
	ProcessingTime float64     `json:"processingTime"`
	Timestamp      string      `json:"timestamp"`
}

// ModelInfo describes the classifier loaded by the ML service.
// InputShape keeps nulls for the batch dimension.
type ModelInfo struct {
	ModelVersion  string    `json:"model_version"`
	InputShape    []*int    `json:"input_shape"`
	ImageSize     ImageSize `json:"image_size"`
	Channels      int       `json:"channels"`
	OutputClasses int       `json:"output_classes"`
	ModelFile     string    `json:"model_file"`
	Framework     string    `json:"framework"`
	Timestamp     string    `json:"timestamp"`
	Note          string    `json:"note,omitempty"`
}
