package detection

import (
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// ExtractorConfig holds the feature window sizes, caps and the country
// risk table. All values are externally overridable; zero fields fall
// back to the defaults below.
type ExtractorConfig struct {
	RecentWindow     int // seconds, recent attempt window (default: 600)
	RateMinuteWindow int // seconds (default: 60)
	RateHourWindow   int // seconds (default: 3600)
	HistoricalWindow int // seconds, IP success history (default: 86400)

	UserRecentEntries int // trailing user entries checked for a success (default: 5)
	DiversityEntries  int // trailing IP entries scanned for distinct usernames (default: 20)

	DiversityCap int // default: 10
	PerMinuteCap int // default: 30
	PerHourCap   int // default: 100

	CountryRisk        map[string]int // ISO code -> 0..10
	DefaultCountryRisk int            // unlisted countries (default: 5)
	UnknownCountryRisk int            // country "Unknown" (default: 7)
	HighRiskThreshold  int            // is_high_risk_country cutoff (default: 7)
}

// DefaultCountryRiskTable returns the built-in country risk table.
// Scores follow observed SSH brute-force origin distribution; anything
// unlisted scores DefaultCountryRisk.
func DefaultCountryRiskTable() map[string]int {
	return map[string]int{
		"CN": 8, "RU": 8, "KP": 9, "IR": 8,
		"VN": 6, "IN": 6, "BR": 6, "ID": 6, "TH": 6, "UA": 6,
		"US": 2, "CA": 2, "GB": 2, "DE": 2, "FR": 2,
		"NL": 3, "AU": 2, "JP": 2, "KR": 3, "SG": 3,
	}
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		RecentWindow:       600,
		RateMinuteWindow:   60,
		RateHourWindow:     3600,
		HistoricalWindow:   86400,
		UserRecentEntries:  5,
		DiversityEntries:   20,
		DiversityCap:       10,
		PerMinuteCap:       30,
		PerHourCap:         100,
		CountryRisk:        DefaultCountryRiskTable(),
		DefaultCountryRisk: 5,
		UnknownCountryRisk: 7,
		HighRiskThreshold:  7,
	}
}

// Extractor derives the model feature vector for one event from the
// event itself plus the causal history snapshots taken when the event was
// appended. Extraction is a pure function of its inputs: the same event
// and snapshots always produce the same vector, and nothing is mutated.
//
// Thread Safety: Safe for concurrent use; the extractor holds only
// immutable configuration.
type Extractor struct {
	cfg ExtractorConfig
}

func NewExtractor(config ExtractorConfig) *Extractor {
	def := DefaultExtractorConfig()
	if config.RecentWindow <= 0 {
		config.RecentWindow = def.RecentWindow
	}
	if config.RateMinuteWindow <= 0 {
		config.RateMinuteWindow = def.RateMinuteWindow
	}
	if config.RateHourWindow <= 0 {
		config.RateHourWindow = def.RateHourWindow
	}
	if config.HistoricalWindow <= 0 {
		config.HistoricalWindow = def.HistoricalWindow
	}
	if config.UserRecentEntries <= 0 {
		config.UserRecentEntries = def.UserRecentEntries
	}
	if config.DiversityEntries <= 0 {
		config.DiversityEntries = def.DiversityEntries
	}
	if config.DiversityCap <= 0 {
		config.DiversityCap = def.DiversityCap
	}
	if config.PerMinuteCap <= 0 {
		config.PerMinuteCap = def.PerMinuteCap
	}
	if config.PerHourCap <= 0 {
		config.PerHourCap = def.PerHourCap
	}
	if config.CountryRisk == nil {
		config.CountryRisk = def.CountryRisk
	}
	if config.DefaultCountryRisk <= 0 {
		config.DefaultCountryRisk = def.DefaultCountryRisk
	}
	if config.UnknownCountryRisk <= 0 {
		config.UnknownCountryRisk = def.UnknownCountryRisk
	}
	if config.HighRiskThreshold <= 0 {
		config.HighRiskThreshold = def.HighRiskThreshold
	}
	return &Extractor{cfg: config}
}

// Extract builds the feature vector for an event. The snapshots must come
// from HistoryStore.Observe for this event, so the current event is
// already included in every window count. Composite indicator flags are
// left zero here; the rule engine fills them.
//
// Extraction never fails: an unparseable source IP leaves is_private_ip
// at 0 and an unknown country falls back to the default risk. Window
// counts are anchored at the IP snapshot's effective timestamp, which is
// the event timestamp for an in-order stream.
func (x *Extractor) Extract(event *domain.Event, ipSnap, userSnap Snapshot) *domain.FeatureVector {
	vec := &domain.FeatureVector{}

	x.timeFeatures(event, vec)

	anchor := ipSnap.Anchor
	if anchor.IsZero() {
		anchor = event.Timestamp
	}
	anchorNano := anchor.UnixNano()

	recentIdx := sinceIndex(ipSnap.Entries, anchorNano-int64(x.cfg.RecentWindow)*1e9)
	recent := ipSnap.Entries[recentIdx:]
	vec.RecentAttempts = len(recent)
	vec.RecentFailureRate = failureRate(recent)

	historical := ipSnap.Entries[sinceIndex(ipSnap.Entries, anchorNano-int64(x.cfg.HistoricalWindow)*1e9):]
	vec.HistoricalSuccessRate = successRate(historical)

	vec.UserSuccessRate = successRate(userSnap.Entries)
	vec.UserHasRecentSuccess = boolFlag(hasSuccess(tail(userSnap.Entries, x.cfg.UserRecentEntries)))

	vec.IPUserDiversity = minInt(distinctCounterparts(tail(ipSnap.Entries, x.cfg.DiversityEntries)), x.cfg.DiversityCap)

	perMinute := len(ipSnap.Entries) - sinceIndex(ipSnap.Entries, anchorNano-int64(x.cfg.RateMinuteWindow)*1e9)
	vec.AttemptsPerMinute = minInt(perMinute, x.cfg.PerMinuteCap)

	perHour := len(ipSnap.Entries) - sinceIndex(ipSnap.Entries, anchorNano-int64(x.cfg.RateHourWindow)*1e9)
	vec.AttemptsPerHour = minInt(perHour, x.cfg.PerHourCap)

	vec.CountryRisk = x.countryRisk(event.Country)
	vec.IsHighRiskCountry = boolFlag(vec.CountryRisk >= x.cfg.HighRiskThreshold)
	vec.IsPrivateIP = boolFlag(isPrivateIP(event.SourceIP))

	vec.IsFailedPassword = boolFlag(event.EventType == domain.EventFailedPassword)
	vec.IsInvalidUser = boolFlag(event.EventType == domain.EventInvalidUser)
	vec.IsAcceptedPassword = boolFlag(event.EventType == domain.EventAcceptedPassword)

	return vec
}

func (x *Extractor) timeFeatures(event *domain.Event, vec *domain.FeatureVector) {
	hour := event.Timestamp.Hour()
	weekday := event.Timestamp.Weekday()
	weekend := weekday == time.Saturday || weekday == time.Sunday

	vec.HourOfDay = hour
	vec.DayOfWeek = int(weekday)
	vec.IsWeekend = boolFlag(weekend)
	vec.IsNight = boolFlag(hour < 6 || hour > 22)
	vec.IsBusinessHours = boolFlag(!weekend && hour >= 9 && hour <= 17)
}

func (x *Extractor) countryRisk(country string) int {
	if country == "" || country == domain.CountryUnknown {
		return x.cfg.UnknownCountryRisk
	}
	if risk, ok := x.cfg.CountryRisk[strings.ToUpper(country)]; ok {
		return risk
	}
	return x.cfg.DefaultCountryRisk
}

// sinceIndex returns the index of the first entry with timestamp >=
// cutoff. Entries are ascending, so everything from the index onward is
// inside the window.
func sinceIndex(entries []domain.HistoryEntry, cutoffNano int64) int {
	return sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp.UnixNano() >= cutoffNano
	})
}

func failureRate(entries []domain.HistoryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	failed := 0
	for _, e := range entries {
		if e.EventType.IsFailed() {
			failed++
		}
	}
	return float64(failed) / float64(len(entries))
}

func successRate(entries []domain.HistoryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	succeeded := 0
	for _, e := range entries {
		if e.EventType.IsSuccess() {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(entries))
}

func hasSuccess(entries []domain.HistoryEntry) bool {
	for _, e := range entries {
		if e.EventType.IsSuccess() {
			return true
		}
	}
	return false
}

func distinctCounterparts(entries []domain.HistoryEntry) int {
	if len(entries) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Counterpart] = struct{}{}
	}
	return len(seen)
}

func tail(entries []domain.HistoryEntry, n int) []domain.HistoryEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isPrivateIP reports whether the address sits in private, loopback or
// link-local space. Parse failures are treated as public.
func isPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
