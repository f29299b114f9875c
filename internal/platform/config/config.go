// Package config loads and validates the full configuration surface at
// startup. Everything is externally supplied (environment, optionally a yaml
// file); nothing here is a flag, and invalid values fail fast before any
// listener starts.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	dErrors "mirrorgate/pkg/domain-errors"
)

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Biometric BiometricConfig `mapstructure:"biometric" validate:"required"`
	Device    DeviceConfig    `mapstructure:"device" validate:"required"`
	Nonce     NonceConfig     `mapstructure:"nonce" validate:"required"`
	Bridge    BridgeConfig    `mapstructure:"bridge" validate:"required"`
	Sync      SyncConfig      `mapstructure:"sync" validate:"required"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// OperatorToken marks requests carrying it as operator-privileged, which
	// manual conflict resolution requires. Empty disables operator requests.
	OperatorToken string `mapstructure:"operator_token"`
}

// ModalityThresholds configures one biometric channel.
type ModalityThresholds struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`
	LivenessThreshold   float64 `mapstructure:"liveness_threshold" validate:"gte=0,lte=1"`
	AdaptiveUpdate      bool    `mapstructure:"adaptive_update"`
}

// BiometricConfig contains thresholds per modality plus the floors shared by
// every channel.
type BiometricConfig struct {
	Voice    ModalityThresholds `mapstructure:"voice" validate:"required"`
	Face     ModalityThresholds `mapstructure:"face" validate:"required"`
	Behavior ModalityThresholds `mapstructure:"behavior" validate:"required"`

	// LivenessFloor is the hard floor below which a sample is treated as a
	// spoof regardless of similarity.
	LivenessFloor float64 `mapstructure:"liveness_floor" validate:"gte=0,lte=1"`

	// StrictLivenessFloor is the elevated bar applied when the presenting
	// device is untrusted.
	StrictLivenessFloor float64 `mapstructure:"strict_liveness_floor" validate:"gte=0,lte=1"`

	// VerifyTimeout bounds each modality verification; on timeout that
	// modality is treated as failed.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" validate:"required,min=1s"`

	// TemplateKey is the hex-encoded 32-byte master key for template
	// encryption at rest.
	TemplateKey string `mapstructure:"template_key" validate:"required,hexadecimal,len=64"`

	// RequiredModalities is the set a proof must satisfy; WaivableModalities
	// may be skipped when the device is trusted. Voice is never waivable.
	RequiredModalities []string `mapstructure:"required_modalities" validate:"required,min=1,dive,oneof=voice face behavior"`
	WaivableModalities []string `mapstructure:"waivable_modalities" validate:"dive,oneof=face behavior"`
}

// DeviceConfig contains device trust settings.
type DeviceConfig struct {
	// MatchThreshold is the weighted fingerprint similarity at or above which
	// a presented device matches a fingerprint the subject already owns. A
	// matching device is trusted; anything below registers as a new device.
	MatchThreshold float64 `mapstructure:"match_threshold" validate:"gte=0,lte=1"`

	// TrustFloor is the accumulated trust level below which even a matching
	// device loses its trusted standing (docked by failed challenges or worn
	// down by idle decay).
	TrustFloor float64 `mapstructure:"trust_floor" validate:"gte=0,lte=1"`
}

// NonceConfig contains nonce ledger settings.
type NonceConfig struct {
	TTL           time.Duration `mapstructure:"ttl" validate:"required,min=1s,max=5m"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required,min=1s"`
}

// BridgeConfig contains bridge session settings. Keys are hex-encoded 32-byte
// values: SigningKey authenticates QR payloads, SealingKey encrypts them.
type BridgeConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"required,min=10s"`
	SigningKey string        `mapstructure:"signing_key" validate:"required,hexadecimal,len=64"`
	SealingKey string        `mapstructure:"sealing_key" validate:"required,hexadecimal,len=64"`
}

// Conflict policies for the mirror synchronizer.
const (
	ConflictManual           = "manual"
	ConflictPreferA          = "prefer_a"
	ConflictPreferB          = "prefer_b"
	ConflictRejectOnConflict = "reject_on_conflict"
)

// SyncConfig contains mirror synchronizer settings.
type SyncConfig struct {
	ConflictPolicy string `mapstructure:"conflict_policy" validate:"required,oneof=manual prefer_a prefer_b reject_on_conflict"`
}

// PostgresConfig contains the database connection settings. URL empty means
// in-memory stores (dev/test).
type PostgresConfig struct {
	URL          string        `mapstructure:"url"`
	MaxOpenConns int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

// RedisConfig contains the Redis connection settings. URL empty means
// in-memory nonce/session stores (dev/test).
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig contains the audit publisher settings. Empty brokers means the
// audit pipeline stays on the in-process worker only.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from the environment (prefix MIRRORGATE_) and an
// optional yaml file, applies defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MIRRORGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about. Secrets and
	// connection settings deliberately have no defaults, so they are bound
	// explicitly or an env-only deployment could never supply them.
	for _, key := range []string{
		"server.operator_token",
		"biometric.template_key",
		"bridge.signing_key",
		"bridge.sealing_key",
		"postgres.url",
		"redis.url",
		"kafka.brokers",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "bind environment")
		}
	}

	v.SetConfigName("mirrorgate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mirrorgate")
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; the environment is the primary source.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies struct tags plus the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid configuration")
	}

	if cfg.Biometric.StrictLivenessFloor < cfg.Biometric.LivenessFloor {
		return dErrors.New(dErrors.CodeInvalidInput,
			"biometric.strict_liveness_floor must be >= biometric.liveness_floor")
	}
	for _, m := range cfg.Biometric.WaivableModalities {
		if m == "voice" {
			return dErrors.New(dErrors.CodeInvalidInput, "voice modality can never be waived")
		}
	}
	required := map[string]bool{}
	for _, m := range cfg.Biometric.RequiredModalities {
		if required[m] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "duplicate required modality %q", m)
		}
		required[m] = true
	}
	if !required["voice"] {
		return dErrors.New(dErrors.CodeInvalidInput, "required_modalities must include voice")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")

	for _, modality := range []string{"voice", "face", "behavior"} {
		v.SetDefault("biometric."+modality+".similarity_threshold", 0.85)
		v.SetDefault("biometric."+modality+".liveness_threshold", 0.7)
		v.SetDefault("biometric."+modality+".adaptive_update", true)
	}
	v.SetDefault("biometric.liveness_floor", 0.4)
	v.SetDefault("biometric.strict_liveness_floor", 0.8)
	v.SetDefault("biometric.verify_timeout", 10*time.Second)
	v.SetDefault("biometric.required_modalities", []string{"voice", "face", "behavior"})
	v.SetDefault("biometric.waivable_modalities", []string{"behavior"})

	v.SetDefault("device.match_threshold", 0.9)
	v.SetDefault("device.trust_floor", 0.05)

	v.SetDefault("nonce.ttl", 30*time.Second)
	v.SetDefault("nonce.sweep_interval", 10*time.Second)

	v.SetDefault("bridge.session_ttl", 2*time.Minute)

	v.SetDefault("sync.conflict_policy", "manual")

	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.conn_lifetime", 30*time.Minute)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.topic", "mirrorgate.audit")
}
