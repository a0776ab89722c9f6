package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/adapters/detection"
)

// weightSumTolerance bounds how far the blend weights may drift from
// summing to exactly 1.
const weightSumTolerance = 0.001

// CurrentHistoryConfig reads the history store settings from viper.
// Unset keys come back zero and fall to the store's defaults.
func CurrentHistoryConfig() detection.HistoryConfig {
	return detection.HistoryConfig{
		ShardCount:      viper.GetInt("history.shard_count"),
		RingCapacity:    viper.GetInt("history.ring_capacity"),
		Retention:       time.Duration(viper.GetInt("history.retention_hours")) * time.Hour,
		MaxKeysPerShard: viper.GetInt("history.max_keys_per_shard"),
		CleanupInterval: time.Duration(viper.GetInt("history.cleanup_interval_seconds")) * time.Second,
	}
}

// CurrentExtractorConfig reads the feature extraction settings. The
// window sizes and caps are fixed: they define the feature schema the
// models are trained against, so only the country risk data is
// deployment-tunable.
func CurrentExtractorConfig() detection.ExtractorConfig {
	cfg := detection.DefaultExtractorConfig()
	cfg.CountryRisk = countryRiskFromConfig()
	if v := viper.GetInt("features.default_country_risk"); v > 0 {
		cfg.DefaultCountryRisk = v
	}
	if v := viper.GetInt("features.unknown_country_risk"); v > 0 {
		cfg.UnknownCountryRisk = v
	}
	if v := viper.GetInt("features.high_risk_country_threshold"); v > 0 {
		cfg.HighRiskThreshold = v
	}
	return cfg
}

func countryRiskFromConfig() map[string]int {
	raw := viper.GetStringMap("features.country_risk")
	if len(raw) == 0 {
		return detection.DefaultCountryRiskTable()
	}

	table := make(map[string]int, len(raw))
	for code, value := range raw {
		risk := 0
		switch v := value.(type) {
		case int:
			risk = v
		case float64:
			risk = int(v)
		default:
			log.Warn().Str("country", code).Msg("Ignoring non-numeric country risk entry")
			continue
		}
		table[strings.ToUpper(code)] = risk
	}
	return table
}

// CurrentRulesConfig reads the composite indicator thresholds and the
// decision list bounds from viper.
func CurrentRulesConfig() detection.RulesConfig {
	return detection.RulesConfig{
		RapidFirePerMinute:      viper.GetInt("rules.rapid_fire_per_minute"),
		PersistentPerHour:       viper.GetInt("rules.persistent_per_hour"),
		PersistentFailureRate:   viper.GetFloat64("rules.persistent_failure_rate"),
		StuffingDiversity:       viper.GetInt("rules.stuffing_diversity"),
		StuffingFailureRate:     viper.GetFloat64("rules.stuffing_failure_rate"),
		NewIPLifetime:           int64(viper.GetInt("rules.new_ip_lifetime")),
		PrivateCalmPerMinute:    viper.GetInt("rules.private_calm_per_minute"),
		TrustedUserPerMinute:    viper.GetInt("rules.trusted_user_per_minute"),
		LowFailureRate:          viper.GetFloat64("rules.low_failure_rate"),
		LowVolumePerHour:        viper.GetInt("rules.low_volume_per_hour"),
		HighVolumePerHour:       viper.GetInt("rules.high_volume_per_hour"),
		HighVolumeFailureRate:   viper.GetFloat64("rules.high_volume_failure_rate"),
		RiskyCountryPerHour:     viper.GetInt("rules.risky_country_per_hour"),
		RiskyCountryFailureRate: viper.GetFloat64("rules.risky_country_failure_rate"),
	}
}

// CurrentScoringConfig reads the blend weights and threat bands.
func CurrentScoringConfig() detection.ScoringConfig {
	return detection.ScoringConfig{
		SupervisedWeight:     viper.GetFloat64("scoring.supervised_weight"),
		UnsupervisedWeight:   viper.GetFloat64("scoring.unsupervised_weight"),
		IntrusionRisk:        viper.GetInt("scoring.intrusion_risk"),
		SuspiciousAccessRisk: viper.GetInt("scoring.suspicious_access_risk"),
		BruteForceRisk:       viper.GetInt("scoring.brute_force_risk"),
		ReconnaissanceRisk:   viper.GetInt("scoring.reconnaissance_risk"),
	}
}

// CurrentWorkerConfig reads the worker pool settings.
func CurrentWorkerConfig() WorkerPoolConfig {
	cfg := DefaultWorkerPoolConfig()
	if v := viper.GetInt("workers.count"); v > 0 {
		cfg.WorkerCount = v
	}
	if v := viper.GetInt("workers.buffer_size"); v > 0 {
		cfg.BufferSize = v
	}
	if v := viper.GetInt("workers.submit_timeout_ms"); v > 0 {
		cfg.SubmitTimeout = time.Duration(v) * time.Millisecond
	}
	if viper.IsSet("workers.alert_cooldown_seconds") {
		cfg.AlertCooldown = time.Duration(viper.GetInt("workers.alert_cooldown_seconds")) * time.Second
	}
	return cfg
}

// BuildChain constructs a scoring chain from the current viper state.
// Used at startup and again on every hot reload.
func BuildChain(source detection.SnapshotSource) ScoringChain {
	return ScoringChain{
		Extractor: detection.NewExtractor(CurrentExtractorConfig()),
		Rules:     detection.NewRuleEngine(CurrentRulesConfig()),
		Scorer:    detection.NewHybridScorer(source, CurrentScoringConfig()),
	}
}

// ValidateConfig checks the current viper state and returns the first
// violation found. Fatal at startup; a hot reload that fails validation
// keeps the previous configuration.
func ValidateConfig() error {
	workerCount := viper.GetInt("workers.count")
	if workerCount < 1 || workerCount > 1000 {
		return &ConfigValidationError{Field: "workers.count", Value: workerCount, Reason: "must be between 1 and 1000"}
	}

	bufferSize := viper.GetInt("workers.buffer_size")
	if bufferSize < 100 || bufferSize > 10000000 {
		return &ConfigValidationError{Field: "workers.buffer_size", Value: bufferSize, Reason: "must be between 100 and 10M"}
	}

	ringCapacity := viper.GetInt("history.ring_capacity")
	if ringCapacity < 16 || ringCapacity > 65536 {
		return &ConfigValidationError{Field: "history.ring_capacity", Value: ringCapacity, Reason: "must be between 16 and 65536"}
	}

	retention := viper.GetInt("history.retention_hours")
	if retention < 1 || retention > 168 {
		return &ConfigValidationError{Field: "history.retention_hours", Value: retention, Reason: "must be between 1 and 168"}
	}

	supervised := viper.GetFloat64("scoring.supervised_weight")
	unsupervised := viper.GetFloat64("scoring.unsupervised_weight")
	if supervised <= 0 || unsupervised < 0 {
		return &ConfigValidationError{Field: "scoring.supervised_weight", Value: supervised, Reason: "weights must be positive"}
	}
	if sum := supervised + unsupervised; math.Abs(sum-1.0) > weightSumTolerance {
		return &ConfigValidationError{Field: "scoring.supervised_weight", Value: sum, Reason: "blend weights must sum to 1.0"}
	}

	for _, key := range []string{
		"scoring.intrusion_risk",
		"scoring.suspicious_access_risk",
		"scoring.brute_force_risk",
		"scoring.reconnaissance_risk",
	} {
		risk := viper.GetInt(key)
		if risk < 1 || risk > 100 {
			return &ConfigValidationError{Field: key, Value: risk, Reason: "must be between 1 and 100"}
		}
	}

	rapidFire := viper.GetInt("rules.rapid_fire_per_minute")
	if rapidFire < 1 {
		return &ConfigValidationError{Field: "rules.rapid_fire_per_minute", Value: rapidFire, Reason: "must be positive"}
	}

	diversity := viper.GetInt("rules.stuffing_diversity")
	if diversity < 1 {
		return &ConfigValidationError{Field: "rules.stuffing_diversity", Value: diversity, Reason: "must be positive"}
	}

	for _, key := range []string{
		"rules.persistent_failure_rate",
		"rules.stuffing_failure_rate",
	} {
		rate := viper.GetFloat64(key)
		if rate < 0 || rate > 1 {
			return &ConfigValidationError{Field: key, Value: rate, Reason: "must be between 0 and 1"}
		}
	}

	return nil
}

// ConfigValidationError is the typed error for rejected configuration.
type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}

// ChainFactory rebuilds the scoring chain from the current viper state.
// Returning an error keeps the engine on its current chain.
type ChainFactory func() (ScoringChain, error)

// HotReloadConfig watches the config file and swaps the engine's scoring
// chain when a valid new configuration lands. The history store is never
// part of the swap, so accumulated behavioral state survives reloads.
type HotReloadConfig struct {
	engine       *Engine
	chainFactory ChainFactory

	configPath string
	mu         sync.Mutex
	stopChan   chan struct{}
	stopOnce   sync.Once
}

type HotReloadOptions struct {
	ConfigPath   string
	Engine       *Engine
	ChainFactory ChainFactory
}

func NewHotReloadConfig(opts HotReloadOptions) *HotReloadConfig {
	return &HotReloadConfig{
		engine:       opts.Engine,
		chainFactory: opts.ChainFactory,
		configPath:   opts.ConfigPath,
		stopChan:     make(chan struct{}),
	}
}

func (h *HotReloadConfig) StartWatching() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")

		h.reload()
	})

	viper.WatchConfig()
	log.Info().Str("config", h.configPath).Msg("Hot-reload config watching started")
}

func (h *HotReloadConfig) reload() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := viper.ReadInConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to re-read config, keeping current configuration")
		return
	}

	if err := ValidateConfig(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return
	}

	if h.engine == nil || h.chainFactory == nil {
		return
	}

	chain, err := h.chainFactory()
	if err != nil {
		log.Error().Err(err).Msg("Failed to rebuild scoring chain, keeping current")
		return
	}

	h.engine.SwapChain(chain)
	log.Info().Msg("Configuration hot-reloaded successfully")
}

func (h *HotReloadConfig) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		log.Info().Msg("Hot-reload config watcher stopped")
	})
}

// ReloadableAnalyzer couples an analyzer with config hot reloading.
type ReloadableAnalyzer struct {
	*Analyzer
	hotConfig *HotReloadConfig
}

func NewReloadableAnalyzer(analyzer *Analyzer, hotConfig *HotReloadConfig) *ReloadableAnalyzer {
	return &ReloadableAnalyzer{
		Analyzer:  analyzer,
		hotConfig: hotConfig,
	}
}

func (a *ReloadableAnalyzer) StartWithHotReload(ctx context.Context) error {
	if a.hotConfig != nil {
		a.hotConfig.StartWatching()
	}
	return a.Start(ctx)
}

func (a *ReloadableAnalyzer) Stop() {
	if a.hotConfig != nil {
		a.hotConfig.Stop()
	}
	a.Analyzer.Stop()
}
