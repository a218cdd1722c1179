package predictions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	domain "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

func TestFromClassification(t *testing.T) {
	t.Parallel()

	res := inference.ClassificationResult{
		Prediction:     "viable",
		Confidence:     93.4,
		ProcessingTime: 412,
		ModelVersion:   "CNN-v2.1.0",
		ImageSize:      &inference.ImageSize{Width: 128, Height: 128},
		Timestamp:      "2025-03-01T10:00:00.000Z",
		AttentionMap:   "data:image/png;base64,AAAA",
	}
	in := FromClassification(res, "data:image/jpeg;base64,BBBB")
	require.NoError(t, in.Validate())

	rec, err := in.ToRecord("id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DetectionSingle, rec.DetectionType())
	assert.Equal(t, "data:image/jpeg;base64,BBBB", rec.Image)
	assert.Equal(t, &domain.ImageSize{Width: 128, Height: 128}, rec.ImageSize)
	assert.InDelta(t, 93.4, rec.Confidence, 1e-9)
}

func detectionResult() inference.DetectionResult {
	return inference.DetectionResult{
		TotalSeeds:     2,
		ViableSeeds:    1,
		NonViableSeeds: 1,
		ViabilityRate:  50,
		ProcessingTime: 900,
		Timestamp:      "2025-03-01T10:00:00.000Z",
		Detections: []inference.Detection{
			{SeedNumber: 1, Classification: "viable", ViabilityConfidence: 91.2, SeedImage: "data:image/png;base64,AA"},
			{SeedNumber: 2, Classification: "non-viable", ViabilityConfidence: 77.9, SeedImage: "data:image/png;base64,BB"},
		},
	}
}

func TestFromDetection(t *testing.T) {
	t.Parallel()

	inputs := FromDetection(detectionResult())
	require.Len(t, inputs, 2)
	for i, in := range inputs {
		require.NoError(t, in.Validate())
		assert.Equal(t, DetectionModelVersion, in.ModelVersion)
		assert.InDelta(t, 450.0, in.ProcessingTime, 1e-9)
		assert.Equal(t, "multi", in.DetectionType)
		require.NotNil(t, in.SeedNumber)
		assert.Equal(t, i+1, *in.SeedNumber)
		assert.Equal(t, &domain.ImageSize{Width: 128, Height: 128}, in.ImageSize)
	}
	assert.InDelta(t, 77.9, *inputs[1].Confidence, 1e-9)

	assert.Nil(t, FromDetection(inference.DetectionResult{TotalSeeds: 0}))
}

func TestSaveDetectionBatch(t *testing.T) {
	t.Parallel()

	svc := newTestService(&memDocument{})
	ctx := context.Background()

	ids, err := svc.AppendBatch(ctx, FromDetection(detectionResult()))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	records, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	seed, ok := records[0].SeedNumber()
	require.True(t, ok)
	assert.Equal(t, 2, seed)
	assert.Equal(t, domain.DetectionMulti, records[0].DetectionType())

	st := svc.Statistics(ctx)
	assert.Equal(t, 1, st.ViableCount)
	assert.Equal(t, 1, st.NonViableCount)
}
