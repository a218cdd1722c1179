package inference

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/tomvto/internal/application"
	domain "github.com/bryanwahyu/tomvto/internal/domain/inference"
)

const (
	// DefaultThreshold is the detection confidence used when the caller sends none.
	DefaultThreshold = 0.25

	MockModelVersion  = "mock"
	MockNote          = "Mock prediction - ML service unavailable"
	FallbackModelNote = "Fallback model info - ML service unavailable"

	EndpointPredictSingle   = "predict_single"
	EndpointPredictAdvanced = "predict_advanced"
	EndpointDetectMulti     = "detect_multi"
	EndpointModelInfo       = "model_info"

	modelInfoKey = "model-info"
	isoMillis    = "2006-01-02T15:04:05.000Z07:00"
)

// Observer receives call outcomes; middleware.Metrics implements it.
type Observer interface {
	ObserveCall(endpoint string, err error, d time.Duration)
	ObserveFallback(endpoint string)
}

// Service decides, per endpoint, whether an ML service failure is surfaced
// or replaced by a clearly labeled local result:
//
//	advanced classification  -> error
//	multi-seed detection     -> error
//	quick single prediction  -> mock classification
//	model info               -> static descriptor
type Service struct {
	Clock   application.Clock
	Logger  *slog.Logger
	Metrics Observer

	client domain.Client
	cache  *cache.Cache
	group  singleflight.Group

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService builds the gateway. A non-positive modelInfoTTL disables caching.
func NewService(client domain.Client, modelInfoTTL time.Duration) *Service {
	s := &Service{
		client: client,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if modelInfoTTL > 0 {
		// no janitor goroutine: a single key is checked for expiry on read
		s.cache = cache.New(modelInfoTTL, 0)
	}
	return s
}

// ClassifyAdvanced forwards to the advanced endpoint and fails loudly.
func (s *Service) ClassifyAdvanced(ctx context.Context, image string) (domain.ClassificationResult, error) {
	if strings.TrimSpace(image) == "" {
		return domain.ClassificationResult{}, domain.ErrImageRequired
	}
	start := time.Now()
	res, err := s.client.PredictAdvanced(ctx, image)
	s.observe(EndpointPredictAdvanced, err, start)
	if err != nil {
		s.logger().Error("advanced prediction failed", "error", err)
		return domain.ClassificationResult{}, err
	}
	return res, nil
}

// ClassifySingle is the quick path. Any service failure yields a mock
// classification carrying MockModelVersion and MockNote.
func (s *Service) ClassifySingle(ctx context.Context, image string) (domain.ClassificationResult, error) {
	if strings.TrimSpace(image) == "" {
		return domain.ClassificationResult{}, domain.ErrImageRequired
	}
	start := time.Now()
	res, err := s.client.PredictAdvanced(ctx, image)
	s.observe(EndpointPredictSingle, err, start)
	if err != nil {
		s.logger().Warn("falling back to mock prediction", "error", err)
		if s.Metrics != nil {
			s.Metrics.ObserveFallback(EndpointPredictSingle)
		}
		return s.mockClassification(), nil
	}
	return res, nil
}

// DetectMulti runs multi-seed detection. There is no fallback.
func (s *Service) DetectMulti(ctx context.Context, image string, threshold float64) (domain.DetectionResult, error) {
	if strings.TrimSpace(image) == "" {
		return domain.DetectionResult{}, domain.ErrImageRequired
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return domain.DetectionResult{}, domain.ErrInvalidThreshold
	}

	start := time.Now()
	res, err := s.client.DetectMulti(ctx, image, threshold)
	s.observe(EndpointDetectMulti, err, start)
	if err != nil {
		s.logger().Error("multi-seed detection failed", "error", err, "threshold", threshold)
		return domain.DetectionResult{}, err
	}
	return res, nil
}

// ModelInfo never fails: an unreachable service yields the static descriptor.
// Concurrent cache misses share one upstream call.
func (s *Service) ModelInfo(ctx context.Context) domain.ModelInfo {
	if s.cache != nil {
		if v, ok := s.cache.Get(modelInfoKey); ok {
			if info, ok := v.(domain.ModelInfo); ok {
				return info
			}
		}
	}

	// the shared call outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(modelInfoKey, func() (any, error) {
		start := time.Now()
		info, err := s.client.ModelInfo(shared)
		s.observe(EndpointModelInfo, err, start)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.SetDefault(modelInfoKey, info)
		}
		return info, nil
	})
	if err != nil {
		s.logger().Warn("falling back to static model info", "error", err)
		if s.Metrics != nil {
			s.Metrics.ObserveFallback(EndpointModelInfo)
		}
		return s.fallbackModelInfo()
	}
	return v.(domain.ModelInfo)
}

func (s *Service) mockClassification() domain.ClassificationResult {
	s.mu.Lock()
	confidence := s.rng.Float64()*20 + 80
	processing := s.rng.Intn(500) + 200
	s.mu.Unlock()

	confidence = math.Round(confidence*10) / 10
	prediction := "non-viable"
	if confidence > 85 {
		prediction = "viable"
	}
	return domain.ClassificationResult{
		Prediction:     prediction,
		Confidence:     confidence,
		ProcessingTime: float64(processing),
		ModelVersion:   MockModelVersion,
		ImageSize:      &domain.ImageSize{Width: 128, Height: 128},
		Timestamp:      s.now().UTC().Format(isoMillis),
		Note:           MockNote,
	}
}

func (s *Service) fallbackModelInfo() domain.ModelInfo {
	dim := func(n int) *int { return &n }
	return domain.ModelInfo{
		ModelVersion:  "CNN-v2.1.0",
		InputShape:    []*int{nil, dim(128), dim(128), dim(3)},
		ImageSize:     domain.ImageSize{Width: 128, Height: 128},
		Channels:      3,
		OutputClasses: 2,
		ModelFile:     "references/saved_custom_cnn_two_model.keras",
		Framework:     "TensorFlow",
		Timestamp:     s.now().UTC().Format(isoMillis),
		Note:          FallbackModelNote,
	}
}

func (s *Service) observe(endpoint string, err error, start time.Time) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.ObserveCall(endpoint, err, time.Since(start))
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

