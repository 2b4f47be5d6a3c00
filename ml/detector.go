package ml

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AnomalyDetector is the pluggable detection capability. Detect returns
// whether the vector is anomalous and a confidence in [0,1].
type AnomalyDetector interface {
	Detect(features *FeatureVector) (bool, float64)
	Train(features *FeatureVector)
}

// minTrainingSamples before a feature's distribution is trusted for
// detection.
const minTrainingSamples = 10

// IQRDetector flags values outside the Tukey fences of each feature's
// recent sample distribution. Samples accumulate online; until a feature
// has enough history it never fires.
type IQRDetector struct {
	mu            sync.RWMutex
	featureValues map[string][]float64
	maxSamples    int
	multiplier    float64
	logger        *zap.SugaredLogger
}

// IQRConfig configures the detector. Zero values take defaults.
type IQRConfig struct {
	MaxSamples int     // samples kept per feature, default 1000
	Multiplier float64 // Tukey fence multiplier, default 1.5
	Logger     *zap.SugaredLogger
}

// NewIQRDetector builds a detector with sane defaults.
func NewIQRDetector(config *IQRConfig) *IQRDetector {
	if config == nil {
		config = &IQRConfig{}
	}
	if config.MaxSamples == 0 {
		config.MaxSamples = 1000
	}
	if config.Multiplier == 0 {
		config.Multiplier = 1.5
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	return &IQRDetector{
		featureValues: make(map[string][]float64),
		maxSamples:    config.MaxSamples,
		multiplier:    config.Multiplier,
		logger:        config.Logger,
	}
}

// Train folds one vector into the per-feature sample windows.
func (d *IQRDetector) Train(features *FeatureVector) {
	if features == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for name, value := range features.Features() {
		values := append(d.featureValues[name], value)
		if len(values) > d.maxSamples {
			values = values[len(values)-d.maxSamples:]
		}
		d.featureValues[name] = values
	}
}

// Detect scores the vector against each feature's learned distribution and
// reports the worst offender. Confidence grows with distance beyond the
// fence, normalized into [0,1].
func (d *IQRDetector) Detect(features *FeatureVector) (bool, float64) {
	if features == nil {
		return false, 0
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var confidence float64
	for name, value := range features.Features() {
		values := d.featureValues[name]
		if len(values) < minTrainingSamples {
			continue
		}
		score, outlier := d.iqrScore(values, value)
		if !outlier {
			continue
		}
		c := math.Min(score/5.0, 1.0)
		if c > confidence {
			confidence = c
		}
	}
	return confidence > 0, confidence
}

// iqrScore returns the deviation beyond the Tukey fences in IQR units, and
// whether the value is an outlier.
func (d *IQRDetector) iqrScore(values []float64, testValue float64) (float64, bool) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1

	if iqr == 0 {
		// degenerate distribution: any deviation from the constant is anomalous
		if testValue != quantile(sorted, 0.5) {
			return 1.0, true
		}
		return 0, false
	}

	lower := q1 - d.multiplier*iqr
	upper := q3 + d.multiplier*iqr

	switch {
	case testValue < lower:
		return (lower - testValue) / iqr, true
	case testValue > upper:
		return (testValue - upper) / iqr, true
	default:
		return 0, false
	}
}

// quantile computes a linearly interpolated quantile over sorted input.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
