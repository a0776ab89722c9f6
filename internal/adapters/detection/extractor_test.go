package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

func repeatEntries(base time.Time, step time.Duration, n int, eventType domain.EventType, counterpart string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, n)
	for i := 0; i < n; i++ {
		out[i] = domain.HistoryEntry{
			Timestamp:   base.Add(time.Duration(i) * step),
			EventType:   eventType,
			Counterpart: counterpart,
		}
	}
	return out
}

func snapAt(entries []domain.HistoryEntry) Snapshot {
	snap := Snapshot{Entries: entries, Lifetime: int64(len(entries))}
	if len(entries) > 0 {
		snap.Anchor = entries[len(entries)-1].Timestamp
	}
	return snap
}

func failedEvent(ts time.Time, ip, user string) *domain.Event {
	return &domain.Event{
		Timestamp: ts,
		SourceIP:  ip,
		Username:  user,
		EventType: domain.EventFailedPassword,
		Country:   "US",
	}
}

func TestExtractor_TimeFeatures(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})

	tests := []struct {
		name          string
		timestamp     time.Time
		hour          int
		dayOfWeek     int
		weekend       int
		night         int
		businessHours int
	}{
		{
			name:          "monday mid-morning",
			timestamp:     time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC),
			hour:          10,
			dayOfWeek:     1,
			weekend:       0,
			night:         0,
			businessHours: 1,
		},
		{
			name:          "saturday afternoon",
			timestamp:     time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC),
			hour:          14,
			dayOfWeek:     6,
			weekend:       1,
			night:         0,
			businessHours: 0,
		},
		{
			name:          "sunday is day zero",
			timestamp:     time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC),
			hour:          12,
			dayOfWeek:     0,
			weekend:       1,
			night:         0,
			businessHours: 0,
		},
		{
			name:          "late night",
			timestamp:     time.Date(2025, 6, 3, 23, 15, 0, 0, time.UTC),
			hour:          23,
			dayOfWeek:     2,
			weekend:       0,
			night:         1,
			businessHours: 0,
		},
		{
			name:          "early morning",
			timestamp:     time.Date(2025, 6, 3, 5, 59, 0, 0, time.UTC),
			hour:          5,
			dayOfWeek:     2,
			weekend:       0,
			night:         1,
			businessHours: 0,
		},
		{
			name:          "six is not night",
			timestamp:     time.Date(2025, 6, 3, 6, 0, 0, 0, time.UTC),
			hour:          6,
			dayOfWeek:     2,
			weekend:       0,
			night:         0,
			businessHours: 0,
		},
		{
			name:          "ten pm is not night",
			timestamp:     time.Date(2025, 6, 3, 22, 0, 0, 0, time.UTC),
			hour:          22,
			dayOfWeek:     2,
			weekend:       0,
			night:         0,
			businessHours: 0,
		},
		{
			name:          "five pm still business hours",
			timestamp:     time.Date(2025, 6, 3, 17, 45, 0, 0, time.UTC),
			hour:          17,
			dayOfWeek:     2,
			weekend:       0,
			night:         0,
			businessHours: 1,
		},
		{
			name:          "six pm not business hours",
			timestamp:     time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
			hour:          18,
			dayOfWeek:     2,
			weekend:       0,
			night:         0,
			businessHours: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := failedEvent(tt.timestamp, "203.0.113.5", "root")
			vec := extractor.Extract(event, Snapshot{Anchor: tt.timestamp}, Snapshot{})

			assert.Equal(t, tt.hour, vec.HourOfDay)
			assert.Equal(t, tt.dayOfWeek, vec.DayOfWeek)
			assert.Equal(t, tt.weekend, vec.IsWeekend)
			assert.Equal(t, tt.night, vec.IsNight)
			assert.Equal(t, tt.businessHours, vec.IsBusinessHours)
		})
	}
}

func TestExtractor_WindowCounts(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// 5 failures in the last minute, one more 30 minutes back, one 2 hours back
	entries := []domain.HistoryEntry{
		{Timestamp: base.Add(-2 * time.Hour), EventType: domain.EventFailedPassword, Counterpart: "root"},
		{Timestamp: base.Add(-30 * time.Minute), EventType: domain.EventFailedPassword, Counterpart: "root"},
	}
	entries = append(entries, repeatEntries(base.Add(-40*time.Second), 10*time.Second, 5, domain.EventFailedPassword, "root")...)

	event := failedEvent(base, "203.0.113.5", "root")
	vec := extractor.Extract(event, snapAt(entries), Snapshot{})

	// 10 minute window excludes the 30 minute and 2 hour entries
	assert.Equal(t, 5, vec.RecentAttempts)
	assert.Equal(t, 5, vec.AttemptsPerMinute)
	assert.Equal(t, 6, vec.AttemptsPerHour)
	assert.InDelta(t, 1.0, vec.RecentFailureRate, 1e-9)
	assert.InDelta(t, 0.0, vec.HistoricalSuccessRate, 1e-9)
}

func TestExtractor_FailureRateCountsOnlyFailedPasswords(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	entries := []domain.HistoryEntry{
		{Timestamp: base.Add(-40 * time.Second), EventType: domain.EventFailedPassword, Counterpart: "root"},
		{Timestamp: base.Add(-30 * time.Second), EventType: domain.EventInvalidUser, Counterpart: "ghost"},
		{Timestamp: base.Add(-20 * time.Second), EventType: domain.EventAcceptedPassword, Counterpart: "root"},
		{Timestamp: base.Add(-10 * time.Second), EventType: domain.EventFailedPassword, Counterpart: "root"},
	}

	event := failedEvent(base, "203.0.113.5", "root")
	vec := extractor.Extract(event, snapAt(entries), Snapshot{})

	assert.Equal(t, 4, vec.RecentAttempts)
	assert.InDelta(t, 0.5, vec.RecentFailureRate, 1e-9)
	assert.InDelta(t, 0.25, vec.HistoricalSuccessRate, 1e-9)
}

func TestExtractor_RatesStayBounded(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	snapshots := []Snapshot{
		{Anchor: base},
		snapAt(repeatEntries(base, time.Second, 50, domain.EventFailedPassword, "root")),
		snapAt(repeatEntries(base, time.Second, 50, domain.EventAcceptedPassword, "root")),
		snapAt(repeatEntries(base, time.Minute, 200, domain.EventInvalidUser, "root")),
	}

	for _, snap := range snapshots {
		vec := extractor.Extract(failedEvent(base.Add(time.Hour), "203.0.113.5", "root"), snap, snap)

		assert.GreaterOrEqual(t, vec.RecentFailureRate, 0.0)
		assert.LessOrEqual(t, vec.RecentFailureRate, 1.0)
		assert.GreaterOrEqual(t, vec.HistoricalSuccessRate, 0.0)
		assert.LessOrEqual(t, vec.HistoricalSuccessRate, 1.0)
		assert.GreaterOrEqual(t, vec.UserSuccessRate, 0.0)
		assert.LessOrEqual(t, vec.UserSuccessRate, 1.0)
	}
}

func TestExtractor_VolumeCaps(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// 120 attempts one second apart, each from a different username
	entries := make([]domain.HistoryEntry, 120)
	for i := range entries {
		entries[i] = domain.HistoryEntry{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			EventType:   domain.EventFailedPassword,
			Counterpart: "user" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
		}
	}

	event := failedEvent(base.Add(119*time.Second), "203.0.113.5", "root")
	vec := extractor.Extract(event, snapAt(entries), Snapshot{})

	assert.Equal(t, 30, vec.AttemptsPerMinute)
	assert.Equal(t, 100, vec.AttemptsPerHour)
	assert.Equal(t, 10, vec.IPUserDiversity)
}

func TestExtractor_DiversityScansTrailingEntriesOnly(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// 30 old entries against distinct users, then 20 recent ones against a single user
	entries := make([]domain.HistoryEntry, 0, 50)
	for i := 0; i < 30; i++ {
		entries = append(entries, domain.HistoryEntry{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			EventType:   domain.EventFailedPassword,
			Counterpart: "user" + string(rune('a'+i)),
		})
	}
	entries = append(entries, repeatEntries(base.Add(30*time.Second), time.Second, 20, domain.EventFailedPassword, "root")...)

	event := failedEvent(base.Add(50*time.Second), "203.0.113.5", "root")
	vec := extractor.Extract(event, snapAt(entries), Snapshot{})

	assert.Equal(t, 1, vec.IPUserDiversity)
}

func TestExtractor_UserSuccessFeatures(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	t.Run("success inside the last five entries", func(t *testing.T) {
		entries := repeatEntries(base, time.Minute, 3, domain.EventFailedPassword, "203.0.113.5")
		entries = append(entries, domain.HistoryEntry{Timestamp: base.Add(4 * time.Minute), EventType: domain.EventAcceptedPassword, Counterpart: "203.0.113.5"})
		entries = append(entries, domain.HistoryEntry{Timestamp: base.Add(5 * time.Minute), EventType: domain.EventFailedPassword, Counterpart: "203.0.113.5"})

		vec := extractor.Extract(failedEvent(base.Add(5*time.Minute), "203.0.113.5", "alice"), Snapshot{Anchor: base}, snapAt(entries))

		assert.Equal(t, 1, vec.UserHasRecentSuccess)
		assert.InDelta(t, 0.2, vec.UserSuccessRate, 1e-9)
	})

	t.Run("success pushed out of the last five", func(t *testing.T) {
		entries := []domain.HistoryEntry{
			{Timestamp: base, EventType: domain.EventAcceptedPassword, Counterpart: "203.0.113.5"},
		}
		entries = append(entries, repeatEntries(base.Add(time.Minute), time.Minute, 5, domain.EventFailedPassword, "203.0.113.5")...)

		vec := extractor.Extract(failedEvent(base.Add(6*time.Minute), "203.0.113.5", "alice"), Snapshot{Anchor: base}, snapAt(entries))

		assert.Equal(t, 0, vec.UserHasRecentSuccess)
		// the full retained history still counts the old success
		assert.InDelta(t, 1.0/6.0, vec.UserSuccessRate, 1e-9)
	})
}

func TestExtractor_CountryRisk(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		country  string
		risk     int
		highRisk int
	}{
		{"known high risk", "CN", 8, 1},
		{"known low risk", "US", 2, 0},
		{"lowercase code still resolves", "ru", 8, 1},
		{"unlisted country gets default", "PT", 5, 0},
		{"unknown placeholder scores above default", "Unknown", 7, 1},
		{"empty country treated as unknown", "", 7, 1},
		{"north korea tops the table", "KP", 9, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := failedEvent(base, "203.0.113.5", "root")
			event.Country = tt.country

			vec := extractor.Extract(event, Snapshot{Anchor: base}, Snapshot{})

			assert.Equal(t, tt.risk, vec.CountryRisk)
			assert.Equal(t, tt.highRisk, vec.IsHighRiskCountry)
		})
	}
}

func TestExtractor_PrivateIP(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ip      string
		private int
	}{
		{"rfc1918 ten block", "10.1.2.3", 1},
		{"rfc1918 192 block", "192.168.1.50", 1},
		{"rfc1918 172 block", "172.16.0.9", 1},
		{"loopback", "127.0.0.1", 1},
		{"link local", "169.254.10.20", 1},
		{"public address", "203.0.113.5", 0},
		{"ipv6 loopback", "::1", 1},
		{"ipv6 unique local", "fd00::1", 1},
		{"ipv6 public", "2001:db8::1", 0},
		{"unparseable address", "not-an-ip", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := failedEvent(base, tt.ip, "root")
			vec := extractor.Extract(event, Snapshot{Anchor: base}, Snapshot{})
			assert.Equal(t, tt.private, vec.IsPrivateIP)
		})
	}
}

func TestExtractor_EventTypeFlags(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		eventType domain.EventType
		failed    int
		invalid   int
		accepted  int
	}{
		{domain.EventFailedPassword, 1, 0, 0},
		{domain.EventInvalidUser, 0, 1, 0},
		{domain.EventAcceptedPassword, 0, 0, 1},
		{domain.EventDisconnect, 0, 0, 0},
		{domain.EventOther, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event := failedEvent(base, "203.0.113.5", "root")
			event.EventType = tt.eventType

			vec := extractor.Extract(event, Snapshot{Anchor: base}, Snapshot{})

			assert.Equal(t, tt.failed, vec.IsFailedPassword)
			assert.Equal(t, tt.invalid, vec.IsInvalidUser)
			assert.Equal(t, tt.accepted, vec.IsAcceptedPassword)
		})
	}
}

func TestExtractor_Deterministic(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	entries := repeatEntries(base, time.Second, 12, domain.EventFailedPassword, "root")
	event := failedEvent(base.Add(12*time.Second), "203.0.113.5", "root")
	ipSnap := snapAt(entries)
	userSnap := snapAt(repeatEntries(base, time.Minute, 4, domain.EventAcceptedPassword, "203.0.113.5"))

	first := extractor.Extract(event, ipSnap, userSnap)
	second := extractor.Extract(event, ipSnap, userSnap)

	assert.Equal(t, *first, *second)
	assert.Equal(t, first.Values(), second.Values())
}

// Extraction run against live store snapshots must count the event that
// was just observed.
func TestExtractor_CountsCurrentEvent(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	store := NewHistoryStore(DefaultHistoryConfig())
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	event := failedEvent(base, "203.0.113.5", "root")
	ipSnap := store.Observe(KeyIP, event.SourceIP, domain.HistoryEntry{Timestamp: event.Timestamp, EventType: event.EventType, Counterpart: event.Username})
	userSnap := store.Observe(KeyUser, event.Username, domain.HistoryEntry{Timestamp: event.Timestamp, EventType: event.EventType, Counterpart: event.SourceIP})

	vec := extractor.Extract(event, ipSnap, userSnap)

	require.Equal(t, 1, vec.RecentAttempts)
	assert.Equal(t, 1, vec.AttemptsPerMinute)
	assert.Equal(t, 1, vec.AttemptsPerHour)
	assert.InDelta(t, 1.0, vec.RecentFailureRate, 1e-9)
	assert.Equal(t, 1, vec.IPUserDiversity)
}

func TestExtractor_IndicatorFlagsLeftForRuleEngine(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	entries := repeatEntries(base, time.Second, 25, domain.EventFailedPassword, "root")
	vec := extractor.Extract(failedEvent(base.Add(25*time.Second), "203.0.113.5", "root"), snapAt(entries), Snapshot{})

	assert.Equal(t, 0, vec.RapidFireAttack)
	assert.Equal(t, 0, vec.PersistentAttack)
	assert.Equal(t, 0, vec.CredentialStuffing)
	assert.Equal(t, 0, vec.NewIPSuspicious)
}

func BenchmarkExtract(b *testing.B) {
	extractor := NewExtractor(ExtractorConfig{})
	base := time.Now()
	entries := repeatEntries(base, time.Second, 200, domain.EventFailedPassword, "root")
	event := failedEvent(base.Add(200*time.Second), "203.0.113.5", "root")
	ipSnap := snapAt(entries)
	userSnap := snapAt(repeatEntries(base, time.Minute, 20, domain.EventFailedPassword, "203.0.113.5"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		extractor.Extract(event, ipSnap, userSnap)
	}
}
