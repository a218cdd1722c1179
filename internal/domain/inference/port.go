package inference

import "context"

// Client is the wire adapter for the external ML service.
type Client interface {
	PredictAdvanced(ctx context.Context, image string) (ClassificationResult, error)
	DetectMulti(ctx context.Context, image string, threshold float64) (DetectionResult, error)
	ModelInfo(ctx context.Context) (ModelInfo, error)
}
