package detection

import (
	"fmt"
	"math"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

type ModelKind string

const (
	ModelSupervised   ModelKind = "supervised"
	ModelUnsupervised ModelKind = "unsupervised"
)

const (
	AlgorithmLogistic = "logistic"
	AlgorithmZScore   = "zscore"
)

// ScalerParams is the standardization learned at training time. Values
// are transformed to (v - mean) / std before entering the decision
// function; a non-positive std falls back to 1.
type ScalerParams struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// ModelArtifact is the on-disk model format. Artifacts are versioned by a
// monotonically increasing integer and pinned to the feature schema they
// were trained against; the registry refuses anything that does not match
// the running schema exactly.
type ModelArtifact struct {
	Version       uint64       `json:"version"`
	Kind          ModelKind    `json:"kind"`
	Algorithm     string       `json:"algorithm"`
	SchemaVersion int          `json:"schema_version"`
	Features      []string     `json:"features"`
	Scaler        ScalerParams `json:"scaler"`

	// logistic
	Weights []float64 `json:"weights,omitempty"`
	Bias    float64   `json:"bias,omitempty"`

	// zscore
	Offset      float64 `json:"offset,omitempty"`
	Sensitivity float64 `json:"sensitivity,omitempty"`

	TrainedAt time.Time `json:"trained_at,omitempty"`
}

// SchemaError reports a feature-schema mismatch between a model artifact
// and the running feature extractor.
type SchemaError struct {
	Field string
	Want  string
	Got   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("model schema mismatch: %s: want %s, got %s", e.Field, e.Want, e.Got)
}

// InferenceError wraps a failure inside a model's decision function. The
// scorer converts it into a degraded result for the affected event.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ValidateArtifact checks an artifact against the running feature schema
// and its own structural requirements. Schema disagreements return a
// *SchemaError so callers can surface them as refusals rather than bugs.
func ValidateArtifact(a *ModelArtifact) error {
	if a == nil {
		return fmt.Errorf("nil artifact")
	}
	if a.Version == 0 {
		return fmt.Errorf("artifact version must be a positive integer")
	}
	if a.Kind != ModelSupervised && a.Kind != ModelUnsupervised {
		return fmt.Errorf("unknown model kind %q", a.Kind)
	}

	if a.SchemaVersion != domain.FeatureSchemaVersion {
		return &SchemaError{
			Field: "schema_version",
			Want:  fmt.Sprintf("%d", domain.FeatureSchemaVersion),
			Got:   fmt.Sprintf("%d", a.SchemaVersion),
		}
	}

	names := domain.FeatureNames()
	if len(a.Features) != len(names) {
		return &SchemaError{
			Field: "features",
			Want:  fmt.Sprintf("%d features", len(names)),
			Got:   fmt.Sprintf("%d features", len(a.Features)),
		}
	}
	for i, name := range names {
		if a.Features[i] != name {
			return &SchemaError{
				Field: fmt.Sprintf("features[%d]", i),
				Want:  name,
				Got:   a.Features[i],
			}
		}
	}

	n := domain.FeatureCount()
	if len(a.Scaler.Mean) != n || len(a.Scaler.Std) != n {
		return fmt.Errorf("scaler length mismatch: mean=%d std=%d, want %d",
			len(a.Scaler.Mean), len(a.Scaler.Std), n)
	}

	switch a.Kind {
	case ModelSupervised:
		if a.Algorithm != AlgorithmLogistic {
			return fmt.Errorf("unsupported supervised algorithm %q", a.Algorithm)
		}
		if len(a.Weights) != n {
			return fmt.Errorf("weights length mismatch: got %d, want %d", len(a.Weights), n)
		}
	case ModelUnsupervised:
		if a.Algorithm != AlgorithmZScore {
			return fmt.Errorf("unsupported unsupervised algorithm %q", a.Algorithm)
		}
		if a.Sensitivity <= 0 {
			return fmt.Errorf("sensitivity must be positive, got %g", a.Sensitivity)
		}
	}

	return nil
}

type scaler struct {
	mean []float64
	std  []float64
}

func (s scaler) transform(values []float64) ([]float64, error) {
	if len(values) != len(s.mean) {
		return nil, fmt.Errorf("feature count mismatch: got %d, want %d", len(values), len(s.mean))
	}
	scaled := make([]float64, len(values))
	for i, v := range values {
		std := s.std[i]
		if std <= 0 {
			std = 1
		}
		scaled[i] = (v - s.mean[i]) / std
	}
	return scaled, nil
}

// logisticModel scores the scaled vector with a logistic decision
// function. probability returns P(class == 1), the attack class.
type logisticModel struct {
	scaler  scaler
	weights []float64
	bias    float64
}

func newLogisticModel(a *ModelArtifact) *logisticModel {
	return &logisticModel{
		scaler:  scaler{mean: a.Scaler.Mean, std: a.Scaler.Std},
		weights: a.Weights,
		bias:    a.Bias,
	}
}

func (m *logisticModel) probability(values []float64) (float64, error) {
	scaled, err := m.scaler.transform(values)
	if err != nil {
		return 0, &InferenceError{Model: string(ModelSupervised), Err: err}
	}
	if len(scaled) != len(m.weights) {
		return 0, &InferenceError{
			Model: string(ModelSupervised),
			Err:   fmt.Errorf("weight count mismatch: got %d, want %d", len(scaled), len(m.weights)),
		}
	}

	z := m.bias
	for i, v := range scaled {
		z += m.weights[i] * v
	}
	return sigmoid(z), nil
}

// zscoreModel is the unsupervised anomaly model: the mean absolute
// z-score of the vector against the training distribution, mapped through
// offset - sensitivity * meanAbsZ. In-distribution vectors score
// positive, anomalous ones negative, matching the convention that lower
// raw scores mean more anomalous.
type zscoreModel struct {
	scaler      scaler
	offset      float64
	sensitivity float64
}

func newZScoreModel(a *ModelArtifact) *zscoreModel {
	return &zscoreModel{
		scaler:      scaler{mean: a.Scaler.Mean, std: a.Scaler.Std},
		offset:      a.Offset,
		sensitivity: a.Sensitivity,
	}
}

func (m *zscoreModel) rawScore(values []float64) (float64, error) {
	scaled, err := m.scaler.transform(values)
	if err != nil {
		return 0, &InferenceError{Model: string(ModelUnsupervised), Err: err}
	}
	if len(scaled) == 0 {
		return 0, &InferenceError{Model: string(ModelUnsupervised), Err: fmt.Errorf("empty feature vector")}
	}

	var sum float64
	for _, v := range scaled {
		sum += math.Abs(v)
	}
	meanAbs := sum / float64(len(scaled))
	return m.offset - m.sensitivity*meanAbs, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// ModelSnapshot is an immutable pairing of the active supervised and
// unsupervised models. Snapshots are swapped whole via atomic pointer so
// a reload never tears an in-flight scoring call.
type ModelSnapshot struct {
	supervised   *logisticModel
	unsupervised *zscoreModel

	supervisedVersion   uint64
	unsupervisedVersion uint64
	loadedAt            time.Time
}

func (s *ModelSnapshot) MLEnabled() bool {
	return s != nil && s.supervised != nil
}

func (s *ModelSnapshot) SupervisedVersion() uint64 {
	if s == nil {
		return 0
	}
	return s.supervisedVersion
}

func (s *ModelSnapshot) UnsupervisedVersion() uint64 {
	if s == nil {
		return 0
	}
	return s.unsupervisedVersion
}

func (s *ModelSnapshot) HasUnsupervised() bool {
	return s != nil && s.unsupervised != nil
}
