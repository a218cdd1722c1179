package predictions

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"
)

// Input is the payload submitted to persist a prediction.
// Confidence and SeedNumber are pointers so that "missing" can be told
// apart from zero.
type Input struct {
	Prediction       string          `json:"prediction"`
	Confidence       *float64        `json:"confidence"`
	ProcessingTime   float64         `json:"processingTime"`
	ModelVersion     string          `json:"modelVersion"`
	ImageSize        *ImageSize      `json:"imageSize,omitempty"`
	Timestamp        string          `json:"timestamp"`
	Image            string          `json:"image,omitempty"`
	AttentionMap     string          `json:"attentionMap,omitempty"`
	FeatureAnalysis  json.RawMessage `json:"featureAnalysis,omitempty"`
	DetailedAnalysis json.RawMessage `json:"detailedAnalysis,omitempty"`
	DetectionType    string          `json:"detectionType,omitempty"`
	SeedNumber       *int            `json:"seedNumber,omitempty"`
}

// DecodeInput reads one Input from r. Malformed JSON and wrong-typed
// fields are reported as validation errors; failures of the reader itself,
// such as a body size limit, are returned unchanged.
func DecodeInput(r io.Reader) (Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		var (
			typeErr   *json.UnmarshalTypeError
			syntaxErr *json.SyntaxError
		)
		switch {
		case errors.As(err, &typeErr):
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return Input{}, invalid(field, "has the wrong type")
		case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return Input{}, invalid("body", "is not valid JSON")
		}
		return Input{}, err
	}
	return in, nil
}

// Validate checks required fields and value ranges.
func (in Input) Validate() error {
	return in.validate()
}

// ToRecord validates the input and builds the record stored under id.
func (in Input) ToRecord(id RecordID) (Record, error) {
	if err := in.validate(); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:               id,
		Prediction:       Outcome(in.Prediction),
		Confidence:       *in.Confidence,
		ProcessingTime:   in.ProcessingTime,
		ModelVersion:     in.ModelVersion,
		ImageSize:        in.ImageSize,
		Timestamp:        in.Timestamp,
		Image:            in.Image,
		AttentionMap:     in.AttentionMap,
		FeatureAnalysis:  in.FeatureAnalysis,
		DetailedAnalysis: in.DetailedAnalysis,
		Origin:           SingleOrigin{},
	}
	if DetectionType(in.DetectionType) == DetectionMulti {
		rec.Origin = MultiOrigin{SeedNumber: *in.SeedNumber}
	}
	return rec, nil
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Prediction) == "" {
		return invalid("prediction", "is required")
	}
	if !Outcome(in.Prediction).Valid() {
		return invalid("prediction", "must be viable or non-viable")
	}
	if in.Confidence == nil {
		return invalid("confidence", "is required")
	}
	if c := *in.Confidence; math.IsNaN(c) || c < 0 || c > 100 {
		return invalid("confidence", "must be between 0 and 100")
	}
	if strings.TrimSpace(in.Timestamp) == "" {
		return invalid("timestamp", "is required")
	}
	if _, err := ParseTimestamp(in.Timestamp); err != nil {
		return invalid("timestamp", "must be an ISO-8601 date-time")
	}
	if in.ProcessingTime < 0 {
		return invalid("processingTime", "must not be negative")
	}
	if in.ImageSize != nil && (in.ImageSize.Width <= 0 || in.ImageSize.Height <= 0) {
		return invalid("imageSize", "dimensions must be positive")
	}

	switch DetectionType(in.DetectionType) {
	case "", DetectionSingle:
		if in.SeedNumber != nil {
			return invalid("seedNumber", "is only allowed for multi detections")
		}
	case DetectionMulti:
		if in.SeedNumber == nil {
			return invalid("seedNumber", "is required for multi detections")
		}
		if *in.SeedNumber <= 0 {
			return invalid("seedNumber", "must be positive")
		}
	default:
		return invalid("detectionType", "must be single or multi")
	}
	return nil
}
