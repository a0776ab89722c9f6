package detection

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// fixedSource serves one snapshot forever, standing in for the registry.
type fixedSource struct {
	snap *ModelSnapshot
}

func (s fixedSource) Active() *ModelSnapshot { return s.snap }

func identityScaler() ScalerParams {
	n := domain.FeatureCount()
	mean := make([]float64, n)
	std := make([]float64, n)
	for i := range std {
		std[i] = 1
	}
	return ScalerParams{Mean: mean, Std: std}
}

// logisticWithBias builds a supervised model whose probability is
// sigmoid(bias) for any input: all weights zero, identity scaling.
func logisticWithBias(bias float64) *logisticModel {
	return newLogisticModel(&ModelArtifact{
		Scaler:  identityScaler(),
		Weights: make([]float64, domain.FeatureCount()),
		Bias:    bias,
	})
}

// zscoreWithOffset builds an unsupervised model whose raw score is the
// offset for a zero input vector (meanAbsZ = 0 under identity scaling).
func zscoreWithOffset(offset float64) *zscoreModel {
	return newZScoreModel(&ModelArtifact{
		Scaler:      identityScaler(),
		Offset:      offset,
		Sensitivity: 1,
	})
}

func testEvent(eventType domain.EventType) *domain.Event {
	return &domain.Event{
		Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		SourceIP:  "203.0.113.9",
		Username:  "root",
		EventType: eventType,
		Country:   "US",
	}
}

func TestHybridScorer_DegradedWithoutModel(t *testing.T) {
	scorer := NewHybridScorer(fixedSource{snap: &ModelSnapshot{}}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventFailedPassword), &domain.FeatureVector{})

	assert.False(t, result.MLAvailable)
	assert.Equal(t, 0, result.RiskScore)
	assert.Equal(t, 0.0, result.Confidence)
	assert.False(t, result.IsAnomaly)
	assert.Equal(t, domain.ModelNone, result.Model)
	assert.Equal(t, domain.ThreatNormal, result.ThreatType)
	assert.Empty(t, result.Error)
}

func TestHybridScorer_SupervisedOnly(t *testing.T) {
	snap := &ModelSnapshot{supervised: logisticWithBias(2)}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventFailedPassword), &domain.FeatureVector{})

	// sigmoid(2) = 0.8808
	p := 1 / (1 + math.Exp(-2))
	require.True(t, result.MLAvailable)
	assert.Equal(t, int(math.Round(p*100)), result.RiskScore)
	assert.InDelta(t, p, result.Confidence, 1e-9)
	assert.True(t, result.IsAnomaly)
	assert.Equal(t, domain.ModelHybrid, result.Model)
	assert.Equal(t, result.RiskScore, result.Components.Supervised)
	assert.Equal(t, 0, result.Components.Unsupervised)
	assert.Equal(t, domain.ThreatBruteForce, result.ThreatType)
}

func TestHybridScorer_BlendsUnsupervised(t *testing.T) {
	// supervised 88, unsupervised raw -1 -> normalized 50,
	// final = round(0.7*88 + 0.3*50) = 77
	snap := &ModelSnapshot{
		supervised:   logisticWithBias(2),
		unsupervised: zscoreWithOffset(-1),
	}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventAcceptedPassword), &domain.FeatureVector{})

	require.True(t, result.MLAvailable)
	assert.Equal(t, 88, result.Components.Supervised)
	assert.Equal(t, 50, result.Components.Unsupervised)
	assert.Equal(t, 77, result.RiskScore)
	assert.Equal(t, domain.ThreatSuspiciousAccess, result.ThreatType)
}

func TestHybridScorer_ZeroUnsupervisedSkipsBlend(t *testing.T) {
	// offset 0 -> raw 0 -> normalized 0: the supervised score stands alone.
	snap := &ModelSnapshot{
		supervised:   logisticWithBias(2),
		unsupervised: zscoreWithOffset(0),
	}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventFailedPassword), &domain.FeatureVector{})

	assert.Equal(t, 88, result.RiskScore)
	assert.Equal(t, 0, result.Components.Unsupervised)
}

func TestHybridScorer_UnsupervisedClampedAt100(t *testing.T) {
	// raw -10 -> -raw*50 = 500, clamped to 100:
	// final = round(0.7*88 + 0.3*100) = 92
	snap := &ModelSnapshot{
		supervised:   logisticWithBias(2),
		unsupervised: zscoreWithOffset(-10),
	}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventAcceptedPassword), &domain.FeatureVector{})

	assert.Equal(t, 100, result.Components.Unsupervised)
	assert.Equal(t, 92, result.RiskScore)
	assert.Equal(t, domain.ThreatIntrusion, result.ThreatType)
}

func TestHybridScorer_ThreatBands(t *testing.T) {
	tests := []struct {
		name      string
		bias      float64
		eventType domain.EventType
		threat    domain.ThreatType
	}{
		{
			// Scenario: compromised account logging in successfully.
			name:      "successful login at very high risk is intrusion",
			bias:      3, // p=0.953 -> 95
			eventType: domain.EventAcceptedPassword,
			threat:    domain.ThreatIntrusion,
		},
		{
			name:      "successful login at high risk is suspicious access",
			bias:      2, // 88
			eventType: domain.EventAcceptedPassword,
			threat:    domain.ThreatSuspiciousAccess,
		},
		{
			name:      "failed login at high risk is brute force",
			bias:      2, // 88
			eventType: domain.EventFailedPassword,
			threat:    domain.ThreatBruteForce,
		},
		{
			name:      "invalid user at moderate risk is reconnaissance",
			bias:      1, // p=0.731 -> 73
			eventType: domain.EventInvalidUser,
			threat:    domain.ThreatReconnaissance,
		},
		{
			name:      "anomalous but below every band",
			bias:      0.2, // p=0.550 -> 55
			eventType: domain.EventFailedPassword,
			threat:    domain.ThreatAnomaly,
		},
		{
			name:      "not anomalous is normal",
			bias:      -2, // p=0.119 -> 12
			eventType: domain.EventFailedPassword,
			threat:    domain.ThreatNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &ModelSnapshot{supervised: logisticWithBias(tt.bias)}
			scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

			result := scorer.Score(context.Background(), testEvent(tt.eventType), &domain.FeatureVector{})
			assert.Equal(t, tt.threat, result.ThreatType)
		})
	}
}

func TestHybridScorer_InferenceFailureDegrades(t *testing.T) {
	// A model whose scaler disagrees with the feature count fails inside
	// the decision function; the scorer must degrade, not panic.
	broken := &logisticModel{
		scaler:  scaler{mean: make([]float64, 5), std: []float64{1, 1, 1, 1, 1}},
		weights: make([]float64, 5),
	}
	snap := &ModelSnapshot{supervised: broken}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventFailedPassword), &domain.FeatureVector{})

	assert.False(t, result.MLAvailable)
	assert.Equal(t, domain.ModelNone, result.Model)
	assert.NotEmpty(t, result.Error)
	assert.Contains(t, result.Error, "feature count mismatch")
}

func TestHybridScorer_UnsupervisedFailureDegrades(t *testing.T) {
	broken := &zscoreModel{
		scaler:      scaler{mean: make([]float64, 5), std: []float64{1, 1, 1, 1, 1}},
		sensitivity: 1,
	}
	snap := &ModelSnapshot{
		supervised:   logisticWithBias(2),
		unsupervised: broken,
	}
	scorer := NewHybridScorer(fixedSource{snap: snap}, DefaultScoringConfig())

	result := scorer.Score(context.Background(), testEvent(domain.EventFailedPassword), &domain.FeatureVector{})

	assert.False(t, result.MLAvailable)
	assert.NotEmpty(t, result.Error)
}

func TestHybridScorer_ZeroConfigUsesDefaults(t *testing.T) {
	snap := &ModelSnapshot{supervised: logisticWithBias(3)}
	scorer := NewHybridScorer(fixedSource{snap: snap}, ScoringConfig{})

	result := scorer.Score(context.Background(), testEvent(domain.EventAcceptedPassword), &domain.FeatureVector{})
	assert.Equal(t, domain.ThreatIntrusion, result.ThreatType)

	assert.Equal(t, "hybrid", scorer.Name())
}
