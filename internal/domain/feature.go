package domain

// FeatureSchemaVersion identifies the feature layout below. Model
// artifacts record the schema version they were trained against and the
// registry refuses artifacts that do not match.
const FeatureSchemaVersion = 1

// FeatureVector is the model input contract. Field order is the schema:
// Names, Values and the JSON encoding all follow declaration order, and
// changing it requires bumping FeatureSchemaVersion.
type FeatureVector struct {
	HourOfDay             int     `json:"hour_of_day"`
	DayOfWeek             int     `json:"day_of_week"`
	IsWeekend             int     `json:"is_weekend"`
	IsNight               int     `json:"is_night"`
	IsBusinessHours       int     `json:"is_business_hours"`
	RecentAttempts        int     `json:"recent_attempts"`
	RecentFailureRate     float64 `json:"recent_failure_rate"`
	HistoricalSuccessRate float64 `json:"historical_success_rate"`
	UserSuccessRate       float64 `json:"user_success_rate"`
	UserHasRecentSuccess  int     `json:"user_has_recent_success"`
	IPUserDiversity       int     `json:"ip_user_diversity"`
	AttemptsPerMinute     int     `json:"attempts_per_minute"`
	AttemptsPerHour       int     `json:"attempts_per_hour"`
	CountryRisk           int     `json:"country_risk"`
	IsHighRiskCountry     int     `json:"is_high_risk_country"`
	IsPrivateIP           int     `json:"is_private_ip"`
	IsFailedPassword      int     `json:"is_failed_password"`
	IsInvalidUser         int     `json:"is_invalid_user"`
	IsAcceptedPassword    int     `json:"is_accepted_password"`
	RapidFireAttack       int     `json:"rapid_fire_attack"`
	PersistentAttack      int     `json:"persistent_attack"`
	CredentialStuffing    int     `json:"credential_stuffing"`
	NewIPSuspicious       int     `json:"new_ip_suspicious"`
}

var featureNames = []string{
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"is_night",
	"is_business_hours",
	"recent_attempts",
	"recent_failure_rate",
	"historical_success_rate",
	"user_success_rate",
	"user_has_recent_success",
	"ip_user_diversity",
	"attempts_per_minute",
	"attempts_per_hour",
	"country_risk",
	"is_high_risk_country",
	"is_private_ip",
	"is_failed_password",
	"is_invalid_user",
	"is_accepted_password",
	"rapid_fire_attack",
	"persistent_attack",
	"credential_stuffing",
	"new_ip_suspicious",
}

func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

func FeatureCount() int {
	return len(featureNames)
}

func (v *FeatureVector) Values() []float64 {
	return []float64{
		float64(v.HourOfDay),
		float64(v.DayOfWeek),
		float64(v.IsWeekend),
		float64(v.IsNight),
		float64(v.IsBusinessHours),
		float64(v.RecentAttempts),
		v.RecentFailureRate,
		v.HistoricalSuccessRate,
		v.UserSuccessRate,
		float64(v.UserHasRecentSuccess),
		float64(v.IPUserDiversity),
		float64(v.AttemptsPerMinute),
		float64(v.AttemptsPerHour),
		float64(v.CountryRisk),
		float64(v.IsHighRiskCountry),
		float64(v.IsPrivateIP),
		float64(v.IsFailedPassword),
		float64(v.IsInvalidUser),
		float64(v.IsAcceptedPassword),
		float64(v.RapidFireAttack),
		float64(v.PersistentAttack),
		float64(v.CredentialStuffing),
		float64(v.NewIPSuspicious),
	}
}
