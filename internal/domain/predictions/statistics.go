package predictions

import (
	"math"
	"time"
)

// RecentLimit is how many of the newest records the statistics echo back.
const RecentLimit = 4

// RecentPrediction is the short projection of a record shown on the dashboard.
type RecentPrediction struct {
	ID         RecordID `json:"id"`
	Result     Outcome  `json:"result"`
	Confidence float64  `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
}

// Statistics summarises the retained records.
type Statistics struct {
	TotalPredictions  int                `json:"totalPredictions"`
	ViableCount       int                `json:"viableCount"`
	NonViableCount    int                `json:"nonViableCount"`
	ViabilityRate     float64            `json:"viabilityRate"`
	AvgConfidence     float64            `json:"avgConfidence"`
	AvgProcessingTime float64            `json:"avgProcessingTime"`
	RecentPredictions []RecentPrediction `json:"recentPredictions"`
	LastUpdated       time.Time          `json:"lastUpdated"`
}

// EmptyStatistics is the all-zero result used for an empty or unreadable store.
func EmptyStatistics(now time.Time) Statistics {
	return Statistics{
		RecentPredictions: []RecentPrediction{},
		LastUpdated:       now,
	}
}

// ComputeStatistics derives the summary from records ordered newest first.
// It has no side effects; only LastUpdated depends on anything but records.
func ComputeStatistics(records []Record, now time.Time) Statistics {
	st := EmptyStatistics(now)
	total := len(records)
	if total == 0 {
		return st
	}

	var sumConfidence, sumProcessing float64
	for _, r := range records {
		switch r.Prediction {
		case OutcomeViable:
			st.ViableCount++
		case OutcomeNonViable:
			st.NonViableCount++
		}
		sumConfidence += r.Confidence
		sumProcessing += r.ProcessingTime
	}

	st.TotalPredictions = total
	st.ViabilityRate = round1(float64(st.ViableCount) / float64(total) * 100)
	st.AvgConfidence = round1(sumConfidence / float64(total))
	st.AvgProcessingTime = round1(sumProcessing / float64(total))

	n := min(total, RecentLimit)
	st.RecentPredictions = make([]RecentPrediction, 0, n)
	for _, r := range records[:n] {
		st.RecentPredictions = append(st.RecentPredictions, RecentPrediction{
			ID:         r.ID,
			Result:     r.Prediction,
			Confidence: r.Confidence,
			Timestamp:  r.Timestamp,
		})
	}
	return st
}

// round1 rounds to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
