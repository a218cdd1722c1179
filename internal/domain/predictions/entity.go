package predictions

import "encoding/json"

// RecordID identifies a persisted prediction record
type RecordID string

// Outcome enum
type Outcome string

const (
	OutcomeViable    Outcome = "viable"
	OutcomeNonViable Outcome = "non-viable"
)

func (o Outcome) Valid() bool {
	return o == OutcomeViable || o == OutcomeNonViable
}

// DetectionType enum
type DetectionType string

const (
	DetectionSingle DetectionType = "single"
	DetectionMulti  DetectionType = "multi"
)

// ImageSize value object
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Origin tells where a record came from. A seed number only exists on
// MultiOrigin, so a single-seed record can never carry one.
type Origin interface {
	DetectionType() DetectionType
	isOrigin()
}

// SingleOrigin marks a record produced by a single-seed classification.
type SingleOrigin struct{}

func (SingleOrigin) DetectionType() DetectionType { return DetectionSingle }
func (SingleOrigin) isOrigin()                    {}

// MultiOrigin marks a record produced for one seed of a multi-seed detection.
type MultiOrigin struct {
	SeedNumber int
}

func (MultiOrigin) DetectionType() DetectionType { return DetectionMulti }
func (MultiOrigin) isOrigin()                    {}

// Record is one completed classification. Records are immutable once
// stored; the only mutation is removal.
type Record struct {
	ID               RecordID
	Prediction       Outcome
	Confidence       float64
	ProcessingTime   float64
	ModelVersion     string
	ImageSize        *ImageSize
	Timestamp        string
	Image            string
	AttentionMap     string
	FeatureAnalysis  json.RawMessage
	DetailedAnalysis json.RawMessage
	Origin           Origin
}

// DetectionType defaults to single when no origin is set.
func (r Record) DetectionType() DetectionType {
	if r.Origin == nil {
		return DetectionSingle
	}
	return r.Origin.DetectionType()
}

// SeedNumber returns the seed position for multi-seed records.
func (r Record) SeedNumber() (int, bool) {
	m, ok := r.Origin.(MultiOrigin)
	if !ok {
		return 0, false
	}
	return m.SeedNumber, true
}

// recordJSON is the flat document layout shared with the dashboard.
type recordJSON struct {
	ID               RecordID        `json:"id"`
	Prediction       Outcome         `json:"prediction"`
	Confidence       float64         `json:"confidence"`
	ProcessingTime   float64         `json:"processingTime"`
	ModelVersion     string          `json:"modelVersion"`
	ImageSize        *ImageSize      `json:"imageSize,omitempty"`
	Timestamp        string          `json:"timestamp"`
	Image            string          `json:"image,omitempty"`
	AttentionMap     string          `json:"attentionMap,omitempty"`
	FeatureAnalysis  json.RawMessage `json:"featureAnalysis,omitempty"`
	DetailedAnalysis json.RawMessage `json:"detailedAnalysis,omitempty"`
	DetectionType    DetectionType   `json:"detectionType"`
	SeedNumber       int             `json:"seedNumber,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:               r.ID,
		Prediction:       r.Prediction,
		Confidence:       r.Confidence,
		ProcessingTime:   r.ProcessingTime,
		ModelVersion:     r.ModelVersion,
		ImageSize:        r.ImageSize,
		Timestamp:        r.Timestamp,
		Image:            r.Image,
		AttentionMap:     r.AttentionMap,
		FeatureAnalysis:  r.FeatureAnalysis,
		DetailedAnalysis: r.DetailedAnalysis,
		DetectionType:    r.DetectionType(),
	}
	if seed, ok := r.SeedNumber(); ok {
		out.SeedNumber = seed
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record{
		ID:               in.ID,
		Prediction:       in.Prediction,
		Confidence:       in.Confidence,
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
	if in.DetectionType == DetectionMulti {
		r.Origin = MultiOrigin{SeedNumber: in.SeedNumber}
	}
	return nil
}
