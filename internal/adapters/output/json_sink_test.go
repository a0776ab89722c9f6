package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

func scoredEvent(ip string, risk int) *domain.ScoredEvent {
	return domain.NewScoredEvent(
		domain.Event{
			Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
			SourceIP:  ip,
			Username:  "root",
			EventType: domain.EventFailedPassword,
			Country:   "US",
		},
		domain.RiskResult{
			RiskScore:   risk,
			Confidence:  0.9,
			IsAnomaly:   risk >= 60,
			MLAvailable: true,
			Model:       domain.ModelHybrid,
			ThreatType:  domain.ThreatBruteForce,
			RuleVerdict: domain.VerdictAnomaly,
		},
	)
}

func TestJSONSink_WritesOneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	sink, err := NewJSONSink(JSONSinkConfig{FilePath: path})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Send(ctx, scoredEvent(fmt.Sprintf("203.0.113.%d", i+1), 85)))
	}
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record domain.ScoredEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record), "each line must be a complete record")
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, 85, record.Result.RiskScore)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 3, lines)
}

func TestJSONSink_ScrubsControlCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	sink, err := NewJSONSink(JSONSinkConfig{FilePath: path})
	require.NoError(t, err)

	se := scoredEvent("203.0.113.1", 85)
	se.Event.RawLine = "Failed password for root\nfrom 203.0.113.1\x07"
	se.Event.Username = "root\r"

	require.NoError(t, sink.Send(context.Background(), se))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(strings.TrimRight(string(data), "\n"), "\n")+1,
		"an embedded newline must not split the record")

	var record domain.ScoredEvent
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "Failed password for root from 203.0.113.1 ", record.Event.RawLine)
	assert.Equal(t, "root ", record.Event.Username)

	// the sink copies before scrubbing; the caller's event is untouched
	assert.Contains(t, se.Event.RawLine, "\n")
}

func TestJSONSink_DiscardsWithoutDestination(t *testing.T) {
	sink, err := NewJSONSink(JSONSinkConfig{})
	require.NoError(t, err)

	assert.NoError(t, sink.Send(context.Background(), scoredEvent("203.0.113.1", 85)))
	assert.NoError(t, sink.Flush())
	assert.NoError(t, sink.Close())
}

func TestJSONSink_FlushMakesDataVisible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	sink, err := NewJSONSink(JSONSinkConfig{FilePath: path})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(context.Background(), scoredEvent("203.0.113.1", 85)))
	require.NoError(t, sink.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "flushed records must be on disk before Close")
}

func TestMemorySink_RingBufferEviction(t *testing.T) {
	sink := NewMemorySink(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, sink.Send(ctx, scoredEvent(fmt.Sprintf("203.0.113.%d", i), 60+i)))
	}

	assert.Equal(t, 3, sink.Count())

	results := sink.GetResults()
	require.Len(t, results, 3)
	assert.Equal(t, "203.0.113.3", results[0].Event.SourceIP, "oldest survivor first")
	assert.Equal(t, "203.0.113.4", results[1].Event.SourceIP)
	assert.Equal(t, "203.0.113.5", results[2].Event.SourceIP)
}

func TestMemorySink_GetLatestResults(t *testing.T) {
	sink := NewMemorySink(10)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, sink.Send(ctx, scoredEvent(fmt.Sprintf("203.0.113.%d", i), 60+i)))
	}

	latest := sink.GetLatestResults(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "203.0.113.3", latest[0].Event.SourceIP)
	assert.Equal(t, "203.0.113.4", latest[1].Event.SourceIP)

	assert.Len(t, sink.GetLatestResults(0), 4, "n<=0 returns everything")
	assert.Len(t, sink.GetLatestResults(99), 4, "n beyond count returns everything")
}

func TestMemorySink_Clear(t *testing.T) {
	sink := NewMemorySink(3)
	require.NoError(t, sink.Send(context.Background(), scoredEvent("203.0.113.1", 85)))

	sink.Clear()
	assert.Equal(t, 0, sink.Count())
	assert.Empty(t, sink.GetResults())
}

func TestMemorySink_OnResultDelegatesToSend(t *testing.T) {
	sink := NewMemorySink(3)
	sink.OnResult(scoredEvent("203.0.113.1", 85))
	assert.Equal(t, 1, sink.Count())
}
