package domain

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVector() FeatureVector {
	return FeatureVector{
		HourOfDay:             14,
		DayOfWeek:             2,
		IsBusinessHours:       1,
		RecentAttempts:        7,
		RecentFailureRate:     0.857142857,
		HistoricalSuccessRate: 0.125,
		UserSuccessRate:       0.5,
		UserHasRecentSuccess:  1,
		IPUserDiversity:       4,
		AttemptsPerMinute:     6,
		AttemptsPerHour:       22,
		CountryRisk:           8,
		IsHighRiskCountry:     1,
		IsFailedPassword:      1,
		RapidFireAttack:       1,
	}
}

func TestFeatureNamesMatchValues(t *testing.T) {
	v := sampleVector()
	names := FeatureNames()
	values := v.Values()

	require.Equal(t, FeatureCount(), len(names))
	require.Equal(t, len(names), len(values))
}

func TestFeatureNamesReturnsCopy(t *testing.T) {
	names := FeatureNames()
	names[0] = "mutated"
	assert.Equal(t, "hour_of_day", FeatureNames()[0])
}

func TestFeatureVectorJSONKeyOrder(t *testing.T) {
	v := sampleVector()
	data, err := json.Marshal(&v)
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)

	// Every field is a scalar, so keys and values strictly alternate.
	var keys []string
	for dec.More() {
		key, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, key.(string))
		_, err = dec.Token()
		require.NoError(t, err)
	}

	assert.Equal(t, FeatureNames(), keys)
}

func TestFeatureVectorRoundTrip(t *testing.T) {
	v := sampleVector()
	data, err := json.Marshal(&v)
	require.NoError(t, err)

	var decoded FeatureVector
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, v, decoded)
	assert.Equal(t, v.Values(), decoded.Values())
}

func TestFeatureValuesOrder(t *testing.T) {
	v := FeatureVector{HourOfDay: 23, NewIPSuspicious: 1}
	values := v.Values()

	assert.Equal(t, 23.0, values[0])
	assert.Equal(t, 1.0, values[len(values)-1])
}
