package detection

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// unsupervisedScale maps the raw anomaly score (lower = more anomalous)
// onto 0..100: clamp(0, 100, -raw * 50).
const unsupervisedScale = 50

// ScoringConfig holds the blend weights and the threat classification
// thresholds. Weights must sum to 1; validation happens at config load.
type ScoringConfig struct {
	SupervisedWeight   float64 // default: 0.7
	UnsupervisedWeight float64 // default: 0.3

	IntrusionRisk        int // successful login classified intrusion at this risk (default: 90)
	SuspiciousAccessRisk int // successful login classified suspicious_access (default: 70)
	BruteForceRisk       int // failed login classified brute_force (default: 80)
	ReconnaissanceRisk   int // failed login classified reconnaissance (default: 60)
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SupervisedWeight:     0.7,
		UnsupervisedWeight:   0.3,
		IntrusionRisk:        90,
		SuspiciousAccessRisk: 70,
		BruteForceRisk:       80,
		ReconnaissanceRisk:   60,
	}
}

// SnapshotSource provides the active model snapshot. Implemented by
// ModelRegistry; tests substitute fixed snapshots.
type SnapshotSource interface {
	Active() *ModelSnapshot
}

// HybridScorer scores feature vectors with the active supervised model,
// blended with the unsupervised anomaly score when one is loaded.
//
// Degradation contract: with no supervised model the scorer returns the
// fixed degraded result; an inference failure on one event is caught,
// logged and returned as a degraded result carrying the error. Neither
// case is fatal and neither affects other events.
type HybridScorer struct {
	source SnapshotSource
	cfg    ScoringConfig
}

func NewHybridScorer(source SnapshotSource, config ScoringConfig) *HybridScorer {
	def := DefaultScoringConfig()
	if config.SupervisedWeight <= 0 {
		config.SupervisedWeight = def.SupervisedWeight
	}
	if config.UnsupervisedWeight <= 0 {
		config.UnsupervisedWeight = def.UnsupervisedWeight
	}
	if config.IntrusionRisk <= 0 {
		config.IntrusionRisk = def.IntrusionRisk
	}
	if config.SuspiciousAccessRisk <= 0 {
		config.SuspiciousAccessRisk = def.SuspiciousAccessRisk
	}
	if config.BruteForceRisk <= 0 {
		config.BruteForceRisk = def.BruteForceRisk
	}
	if config.ReconnaissanceRisk <= 0 {
		config.ReconnaissanceRisk = def.ReconnaissanceRisk
	}
	return &HybridScorer{source: source, cfg: config}
}

// Score evaluates one extracted vector. See the degradation contract on
// HybridScorer; this method never returns an error and never panics on
// malformed model state.
func (s *HybridScorer) Score(ctx context.Context, event *domain.Event, vector *domain.FeatureVector) domain.RiskResult {
	snap := s.source.Active()
	if !snap.MLEnabled() {
		return domain.DegradedResult()
	}

	values := vector.Values()

	p, err := snap.supervised.probability(values)
	if err != nil {
		return s.degrade(event, err)
	}

	supervised := int(math.Round(p * 100))
	confidence := math.Max(p, 1-p)
	isAnomaly := p >= 0.5

	final := supervised
	unsupervised := 0
	if snap.HasUnsupervised() {
		raw, err := snap.unsupervised.rawScore(values)
		if err != nil {
			return s.degrade(event, err)
		}
		unsupervised = int(math.Round(clampFloat(-raw*unsupervisedScale, 0, 100)))
		if unsupervised != 0 {
			final = int(math.Round(s.cfg.SupervisedWeight*float64(supervised) +
				s.cfg.UnsupervisedWeight*float64(unsupervised)))
		}
	}

	return domain.RiskResult{
		RiskScore:   clampScore(final),
		Confidence:  confidence,
		IsAnomaly:   isAnomaly,
		MLAvailable: true,
		Model:       domain.ModelHybrid,
		Components: domain.ComponentScores{
			Supervised:   supervised,
			Unsupervised: unsupervised,
		},
		ThreatType: s.classifyThreat(event.EventType, clampScore(final), isAnomaly),
	}
}

// degrade converts an inference failure into the degraded result for this
// event only.
func (s *HybridScorer) degrade(event *domain.Event, err error) domain.RiskResult {
	log.Warn().
		Err(err).
		Str("source_ip", event.SourceIP).
		Str("username", event.Username).
		Str("event_type", string(event.EventType)).
		Msg("Model inference failed; returning degraded result")

	res := domain.DegradedResult()
	res.Error = err.Error()
	return res
}

// classifyThreat maps an anomalous score onto a threat label. The checks
// run in order; the first band that matches wins.
func (s *HybridScorer) classifyThreat(eventType domain.EventType, risk int, isAnomaly bool) domain.ThreatType {
	if !isAnomaly {
		return domain.ThreatNormal
	}
	switch {
	case eventType.IsSuccess() && risk >= s.cfg.IntrusionRisk:
		return domain.ThreatIntrusion
	case eventType.IsSuccess() && risk >= s.cfg.SuspiciousAccessRisk:
		return domain.ThreatSuspiciousAccess
	case eventType.IsFailedLogin() && risk >= s.cfg.BruteForceRisk:
		return domain.ThreatBruteForce
	case eventType.IsFailedLogin() && risk >= s.cfg.ReconnaissanceRisk:
		return domain.ThreatReconnaissance
	default:
		return domain.ThreatAnomaly
	}
}

func (s *HybridScorer) Name() string {
	return "hybrid"
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
