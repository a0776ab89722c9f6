package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDegradedResult(t *testing.T) {
	res := DegradedResult()

	assert.False(t, res.MLAvailable)
	assert.False(t, res.IsAnomaly)
	assert.Equal(t, 0, res.RiskScore)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, ModelNone, res.Model)
	assert.Equal(t, ThreatNormal, res.ThreatType)
}

func TestRiskResultAnomalous(t *testing.T) {
	tests := []struct {
		isAnomaly bool
		verdict   Verdict
		expected  bool
	}{
		{false, VerdictNormal, false},
		{true, VerdictNormal, true},
		{false, VerdictAnomaly, true},
		{true, VerdictAnomaly, true},
	}

	for _, tc := range tests {
		res := RiskResult{IsAnomaly: tc.isAnomaly, RuleVerdict: tc.verdict}
		assert.Equal(t, tc.expected, res.Anomalous())
	}
}

func TestNewScoredEvent(t *testing.T) {
	ev := Event{
		Timestamp: time.Date(2025, 3, 14, 2, 11, 0, 0, time.UTC),
		SourceIP:  "203.0.113.5",
		Username:  "root",
		EventType: EventFailedPassword,
		Country:   "RU",
	}
	res := RiskResult{
		RiskScore:   84,
		Confidence:  0.84,
		IsAnomaly:   true,
		MLAvailable: true,
		Model:       ModelHybrid,
		ThreatType:  ThreatBruteForce,
		RuleVerdict: VerdictAnomaly,
		RuleName:    "rapid_fire_attack",
	}

	scored := NewScoredEvent(ev, res)

	assert.NotEmpty(t, scored.ID)
	assert.Equal(t, ev, scored.Event)
	assert.Equal(t, res, scored.Result)
	assert.False(t, scored.ScoredAt.IsZero())

	other := NewScoredEvent(ev, res)
	assert.NotEqual(t, scored.ID, other.ID)
}

func TestScoredEventToJSON(t *testing.T) {
	ev := Event{
		Timestamp: time.Date(2025, 3, 14, 2, 11, 0, 0, time.UTC),
		SourceIP:  "198.51.100.7",
		Username:  "admin",
		EventType: EventInvalidUser,
	}
	scored := NewScoredEvent(ev, RiskResult{
		RiskScore:   66,
		IsAnomaly:   true,
		MLAvailable: true,
		Model:       ModelHybrid,
		ThreatType:  ThreatReconnaissance,
		RuleVerdict: VerdictAnomaly,
		RuleName:    "invalid_user",
	})

	data, err := scored.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))

	result := parsed["result"].(map[string]interface{})
	assert.Equal(t, "reconnaissance", result["threat_type"])
	assert.Equal(t, "anomaly", result["rule_verdict"])
	assert.Equal(t, float64(66), result["risk_score"])

	pretty, err := scored.ToJSONPretty()
	require.NoError(t, err)
	assert.Contains(t, string(pretty), "\n")
}
