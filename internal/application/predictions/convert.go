package predictions

import (
	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	domain "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

// DetectionModelVersion labels records saved from multi-seed detection.
const DetectionModelVersion = "YOLO + CNN"

// seed crops are classified at the CNN input size
var seedImageSize = domain.ImageSize{Width: 128, Height: 128}

// FromClassification builds the record input for a single-seed result.
func FromClassification(res inference.ClassificationResult, image string) domain.Input {
	in := domain.Input{
		Prediction:       res.Prediction,
		Confidence:       &res.Confidence,
		ProcessingTime:   res.ProcessingTime,
		ModelVersion:     res.ModelVersion,
		Timestamp:        res.Timestamp,
		Image:            image,
		AttentionMap:     res.AttentionMap,
		FeatureAnalysis:  res.FeatureAnalysis,
		DetailedAnalysis: res.DetailedAnalysis,
		DetectionType:    string(domain.DetectionSingle),
	}
	if res.ImageSize != nil {
		in.ImageSize = &domain.ImageSize{Width: res.ImageSize.Width, Height: res.ImageSize.Height}
	}
	return in
}

// FromDetection builds one record input per detected seed. The batch
// processing time is split evenly across seeds.
func FromDetection(res inference.DetectionResult) []domain.Input {
	if len(res.Detections) == 0 {
		return nil
	}
	seeds := res.TotalSeeds
	if seeds <= 0 {
		seeds = len(res.Detections)
	}
	perSeed := res.ProcessingTime / float64(seeds)

	out := make([]domain.Input, 0, len(res.Detections))
	for _, d := range res.Detections {
		confidence := d.ViabilityConfidence
		seed := d.SeedNumber
		size := seedImageSize
		out = append(out, domain.Input{
			Prediction:       d.Classification,
			Confidence:       &confidence,
			ProcessingTime:   perSeed,
			ModelVersion:     DetectionModelVersion,
			ImageSize:        &size,
			Timestamp:        res.Timestamp,
			Image:            d.SeedImage,
			AttentionMap:     d.AttentionMap,
			FeatureAnalysis:  d.FeatureAnalysis,
			DetailedAnalysis: d.DetailedAnalysis,
			DetectionType:    string(domain.DetectionMulti),
			SeedNumber:       &seed,
		})
	}
	return out
}
