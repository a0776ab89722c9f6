package detection

import (
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// RulesConfig holds the composite indicator thresholds and the decision
// list bounds. Zero fields fall back to defaults.
type RulesConfig struct {
	RapidFirePerMinute    int     // rapid_fire_attack: attempts/min above this (default: 5)
	PersistentPerHour     int     // persistent_attack: attempts/hour above this (default: 20)
	PersistentFailureRate float64 // persistent_attack: recent failure rate above this (default: 0.8)
	StuffingDiversity     int     // credential_stuffing: distinct usernames above this (default: 5)
	StuffingFailureRate   float64 // credential_stuffing: recent failure rate above this (default: 0.9)
	NewIPLifetime         int64   // new_ip_suspicious: IP lifetime attempts below this (default: 3)

	PrivateCalmPerMinute    int     // calm private traffic: attempts/min at most this (default: 2)
	TrustedUserPerMinute    int     // user with recent success: attempts/min at most this (default: 1)
	LowFailureRate          float64 // quiet traffic: recent failure rate at most this (default: 0.3)
	LowVolumePerHour        int     // quiet traffic: attempts/hour at most this (default: 5)
	HighVolumePerHour       int     // failure storm: attempts/hour above this (default: 10)
	HighVolumeFailureRate   float64 // failure storm: recent failure rate above this (default: 0.7)
	RiskyCountryPerHour     int     // risky origin: attempts/hour above this (default: 3)
	RiskyCountryFailureRate float64 // risky origin: recent failure rate above this (default: 0.6)
}

func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		RapidFirePerMinute:      5,
		PersistentPerHour:       20,
		PersistentFailureRate:   0.8,
		StuffingDiversity:       5,
		StuffingFailureRate:     0.9,
		NewIPLifetime:           3,
		PrivateCalmPerMinute:    2,
		TrustedUserPerMinute:    1,
		LowFailureRate:          0.3,
		LowVolumePerHour:        5,
		HighVolumePerHour:       10,
		HighVolumeFailureRate:   0.7,
		RiskyCountryPerHour:     3,
		RiskyCountryFailureRate: 0.6,
	}
}

type decisionRule struct {
	name    string
	verdict domain.Verdict
	match   func(*domain.FeatureVector) bool
}

// RuleEngine computes the composite attack indicators and classifies a
// feature vector through an ordered decision list. The list is evaluated
// top to bottom and the first matching rule decides the verdict; the
// order is therefore part of the policy, not an implementation detail.
//
// Thread Safety: Safe for concurrent use after construction.
type RuleEngine struct {
	cfg   RulesConfig
	rules []decisionRule
}

func NewRuleEngine(config RulesConfig) *RuleEngine {
	def := DefaultRulesConfig()
	if config.RapidFirePerMinute <= 0 {
		config.RapidFirePerMinute = def.RapidFirePerMinute
	}
	if config.PersistentPerHour <= 0 {
		config.PersistentPerHour = def.PersistentPerHour
	}
	if config.PersistentFailureRate <= 0 {
		config.PersistentFailureRate = def.PersistentFailureRate
	}
	if config.StuffingDiversity <= 0 {
		config.StuffingDiversity = def.StuffingDiversity
	}
	if config.StuffingFailureRate <= 0 {
		config.StuffingFailureRate = def.StuffingFailureRate
	}
	if config.NewIPLifetime <= 0 {
		config.NewIPLifetime = def.NewIPLifetime
	}
	if config.PrivateCalmPerMinute <= 0 {
		config.PrivateCalmPerMinute = def.PrivateCalmPerMinute
	}
	if config.TrustedUserPerMinute <= 0 {
		config.TrustedUserPerMinute = def.TrustedUserPerMinute
	}
	if config.LowFailureRate <= 0 {
		config.LowFailureRate = def.LowFailureRate
	}
	if config.LowVolumePerHour <= 0 {
		config.LowVolumePerHour = def.LowVolumePerHour
	}
	if config.HighVolumePerHour <= 0 {
		config.HighVolumePerHour = def.HighVolumePerHour
	}
	if config.HighVolumeFailureRate <= 0 {
		config.HighVolumeFailureRate = def.HighVolumeFailureRate
	}
	if config.RiskyCountryPerHour <= 0 {
		config.RiskyCountryPerHour = def.RiskyCountryPerHour
	}
	if config.RiskyCountryFailureRate <= 0 {
		config.RiskyCountryFailureRate = def.RiskyCountryFailureRate
	}

	e := &RuleEngine{cfg: config}
	e.rules = e.buildRules()
	return e
}

// buildRules assembles the decision list. Anomaly rules come first so a
// benign-looking signal (private IP, past success) can never mask an
// active attack indicator.
func (e *RuleEngine) buildRules() []decisionRule {
	cfg := e.cfg
	return []decisionRule{
		{"invalid_user", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.IsInvalidUser == 1
		}},
		{"rapid_fire_attack", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.RapidFireAttack == 1
		}},
		{"persistent_attack", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.PersistentAttack == 1
		}},
		{"credential_stuffing", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.CredentialStuffing == 1
		}},
		{"new_ip_high_risk_country", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.NewIPSuspicious == 1 && v.IsHighRiskCountry == 1
		}},
		{"private_ip_low_rate", domain.VerdictNormal, func(v *domain.FeatureVector) bool {
			return v.IsPrivateIP == 1 && v.AttemptsPerMinute <= cfg.PrivateCalmPerMinute
		}},
		{"trusted_user_low_rate", domain.VerdictNormal, func(v *domain.FeatureVector) bool {
			return v.UserHasRecentSuccess == 1 && v.AttemptsPerMinute <= cfg.TrustedUserPerMinute
		}},
		{"low_failure_low_volume", domain.VerdictNormal, func(v *domain.FeatureVector) bool {
			return v.RecentFailureRate <= cfg.LowFailureRate && v.AttemptsPerHour <= cfg.LowVolumePerHour
		}},
		{"high_volume_failures", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.AttemptsPerHour > cfg.HighVolumePerHour && v.RecentFailureRate > cfg.HighVolumeFailureRate
		}},
		{"high_risk_country_failures", domain.VerdictAnomaly, func(v *domain.FeatureVector) bool {
			return v.IsHighRiskCountry == 1 && v.AttemptsPerHour > cfg.RiskyCountryPerHour &&
				v.RecentFailureRate > cfg.RiskyCountryFailureRate
		}},
		{"default", domain.VerdictNormal, func(v *domain.FeatureVector) bool {
			return true
		}},
	}
}

// ApplyIndicators computes the composite attack flags from the base
// features and writes them into the vector. ipLifetime is the source
// IP's lifetime attempt count from the history snapshot.
func (e *RuleEngine) ApplyIndicators(vec *domain.FeatureVector, ipLifetime int64) {
	vec.RapidFireAttack = boolFlag(vec.AttemptsPerMinute > e.cfg.RapidFirePerMinute)
	vec.PersistentAttack = boolFlag(vec.AttemptsPerHour > e.cfg.PersistentPerHour &&
		vec.RecentFailureRate > e.cfg.PersistentFailureRate)
	vec.CredentialStuffing = boolFlag(vec.IPUserDiversity > e.cfg.StuffingDiversity &&
		vec.RecentFailureRate > e.cfg.StuffingFailureRate)

	isFailedLogin := vec.IsFailedPassword == 1 || vec.IsInvalidUser == 1
	vec.NewIPSuspicious = boolFlag(ipLifetime < e.cfg.NewIPLifetime &&
		isFailedLogin && vec.IsPrivateIP == 0)
}

// Classify walks the decision list and returns the first matching rule's
// verdict together with the rule name for audit output.
func (e *RuleEngine) Classify(vec *domain.FeatureVector) (domain.Verdict, string) {
	for _, rule := range e.rules {
		if rule.match(vec) {
			return rule.verdict, rule.name
		}
	}
	// unreachable: the default rule matches everything
	return domain.VerdictNormal, "default"
}

// RuleNames returns the decision list order, primarily for tests and
// documentation output.
func (e *RuleEngine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.name
	}
	return names
}

func (e *RuleEngine) Name() string {
	return "rules"
}
