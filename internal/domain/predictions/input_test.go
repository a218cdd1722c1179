package predictions

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validInput() Input {
	return Input{
		Prediction:     "viable",
		Confidence:     ptr(92.5),
		ProcessingTime: 310,
		ModelVersion:   "CNN-v2.1.0",
		ImageSize:      &ImageSize{Width: 128, Height: 128},
		Timestamp:      "2025-03-01T10:00:00.000Z",
	}
}

func TestInputValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"valid", func(*Input) {}, ""},
		{"missing prediction", func(in *Input) { in.Prediction = "" }, "prediction"},
		{"unknown prediction", func(in *Input) { in.Prediction = "maybe" }, "prediction"},
		{"missing confidence", func(in *Input) { in.Confidence = nil }, "confidence"},
		{"confidence above range", func(in *Input) { in.Confidence = ptr(100.1) }, "confidence"},
		{"negative confidence", func(in *Input) { in.Confidence = ptr(-1.0) }, "confidence"},
		{"zero confidence allowed", func(in *Input) { in.Confidence = ptr(0.0) }, ""},
		{"missing timestamp", func(in *Input) { in.Timestamp = "" }, "timestamp"},
		{"bad timestamp", func(in *Input) { in.Timestamp = "yesterday" }, "timestamp"},
		{"zone-less timestamp", func(in *Input) { in.Timestamp = "2025-03-01T10:00:00.123456" }, ""},
		{"offset timestamp", func(in *Input) { in.Timestamp = "2025-03-01T17:00:00+07:00" }, ""},
		{"impossible date", func(in *Input) { in.Timestamp = "2025-02-30T10:00:00Z" }, "timestamp"},
		{"negative processing time", func(in *Input) { in.ProcessingTime = -5 }, "processingTime"},
		{"zero image width", func(in *Input) { in.ImageSize = &ImageSize{Width: 0, Height: 10} }, "imageSize"},
		{"single with seed", func(in *Input) { in.DetectionType = "single"; in.SeedNumber = ptr(1) }, "seedNumber"},
		{"multi without seed", func(in *Input) { in.DetectionType = "multi" }, "seedNumber"},
		{"multi with zero seed", func(in *Input) { in.DetectionType = "multi"; in.SeedNumber = ptr(0) }, "seedNumber"},
		{"multi with seed", func(in *Input) { in.DetectionType = "multi"; in.SeedNumber = ptr(3) }, ""},
		{"unknown detection type", func(in *Input) { in.DetectionType = "batch" }, "detectionType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			tt.mutate(&in)

			err := in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestInputToRecord(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.DetectionType = "multi"
	in.SeedNumber = ptr(2)

	rec, err := in.ToRecord("abc")
	require.NoError(t, err)
	assert.Equal(t, RecordID("abc"), rec.ID)
	assert.Equal(t, OutcomeViable, rec.Prediction)
	assert.InDelta(t, 92.5, rec.Confidence, 1e-9)
	assert.Equal(t, DetectionMulti, rec.DetectionType())
	seed, ok := rec.SeedNumber()
	assert.True(t, ok)
	assert.Equal(t, 2, seed)
	assert.Equal(t, "2025-03-01T10:00:00.000Z", rec.Timestamp, "timestamp is stored verbatim")

	_, err = Input{}.ToRecord("x")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecodeInput(t *testing.T) {
	t.Parallel()

	in, err := DecodeInput(strings.NewReader(`{"prediction":"non-viable","confidence":71,"timestamp":"2025-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.NoError(t, in.Validate())

	_, err = DecodeInput(strings.NewReader(`{"prediction":`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "body", verr.Field)

	_, err = DecodeInput(strings.NewReader(`{"confidence":"high"}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confidence", verr.Field)

	_, err = DecodeInput(strings.NewReader(""))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "body", verr.Field)

	t.Run("reader failures are not validation errors", func(t *testing.T) {
		boom := errors.New("body too large")
		_, err := DecodeInput(io.MultiReader(strings.NewReader(`{"prediction":"via`), iotest.ErrReader(boom)))
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrValidation)
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	valid := []string{
		"2025-03-01T10:00:00Z",
		"2025-03-01T10:00:00.000Z",
		"2025-03-01T10:00:00.123456789+07:00",
		"2025-03-01T10:00:00",
		"2025-03-01T10:00:00.123456",
		"2025-03-01T10:00",
		"2025-03-01",
	}
	for _, s := range valid {
		ts, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2025, ts.Year(), s)
	}

	for _, s := range []string{"", "1740823200000", "01/03/2025 10:00", "2025-13-01T00:00:00Z"} {
		_, err := ParseTimestamp(s)
		assert.Error(t, err, s)
	}
}
