package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Verdict string

const (
	VerdictNormal  Verdict = "normal"
	VerdictAnomaly Verdict = "anomaly"
)

type ThreatType string

const (
	ThreatNormal           ThreatType = "normal"
	ThreatIntrusion        ThreatType = "intrusion"
	ThreatSuspiciousAccess ThreatType = "suspicious_access"
	ThreatBruteForce       ThreatType = "brute_force"
	ThreatReconnaissance   ThreatType = "reconnaissance"
	ThreatAnomaly          ThreatType = "anomaly"
)

type ModelMode string

const (
	ModelNone   ModelMode = "none"
	ModelHybrid ModelMode = "hybrid"
)

type ComponentScores struct {
	Supervised   int `json:"supervised"`
	Unsupervised int `json:"unsupervised"`
}

type RiskResult struct {
	RiskScore   int             `json:"risk_score"`
	Confidence  float64         `json:"confidence"`
	IsAnomaly   bool            `json:"is_anomaly"`
	MLAvailable bool            `json:"ml_available"`
	Model       ModelMode       `json:"model"`
	Components  ComponentScores `json:"components"`
	ThreatType  ThreatType      `json:"threat_type"`
	RuleVerdict Verdict         `json:"rule_verdict"`
	RuleName    string          `json:"rule_name,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// DegradedResult is the fixed shape returned whenever no supervised model
// can score an event. Absence of a model is an operating mode, not an
// error.
func DegradedResult() RiskResult {
	return RiskResult{
		Model:       ModelNone,
		ThreatType:  ThreatNormal,
		RuleVerdict: VerdictNormal,
	}
}

func (r *RiskResult) Anomalous() bool {
	return r.IsAnomaly || r.RuleVerdict == VerdictAnomaly
}

type ScoredEvent struct {
	ID       string     `json:"id"`
	Event    Event      `json:"event"`
	Result   RiskResult `json:"result"`
	ScoredAt time.Time  `json:"scored_at"`
}

func NewScoredEvent(ev Event, res RiskResult) *ScoredEvent {
	return &ScoredEvent{
		ID:       uuid.NewString(),
		Event:    ev,
		Result:   res,
		ScoredAt: time.Now().UTC(),
	}
}

func (s *ScoredEvent) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

func (s *ScoredEvent) ToJSONPretty() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
