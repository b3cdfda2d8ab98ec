// Package config loads pubtf settings from an optional YAML file layered under environment
// variables.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
)

const (
	// SchemaVersion is the only config schema_version understood.
	SchemaVersion = "v1"
	// EnvPrefix prefixes every environment variable read. Nested keys are separated by a
	// double underscore, e.g. PUBTF__KAFKA__BROKERS.
	EnvPrefix = "PUBTF__"
	envDelim  = "__"

	// DefaultBroadcaster is the broadcaster used when none is configured.
	DefaultBroadcaster = "stdout"
	// DefaultKafkaClientID identifies pubtf to kafka brokers.
	DefaultKafkaClientID = "pubtf"
	// DefaultKafkaTimeout bounds how long a kafka publish may wait for acknowledgement.
	DefaultKafkaTimeout = 10 * time.Second
)

// KafkaConfig configures the kafka broadcaster.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	// Topic overrides the topic derived from the transform kind.
	Topic string `koanf:"topic"`
	// RequiredAcks is 0 (none), 1 (leader) or -1 (all in-sync replicas).
	RequiredAcks int16         `koanf:"required_acks"`
	ClientID     string        `koanf:"client_id"`
	Timeout      time.Duration `koanf:"timeout"`
}

// Config is the full pubtf configuration.
type Config struct {
	SchemaVersion     string        `koanf:"schema_version"`
	Broadcaster       string        `koanf:"broadcaster"`
	ParentFrame       string        `koanf:"parent_frame"`
	ChildFrame        string        `koanf:"child_frame"`
	Strict            bool          `koanf:"strict"`
	Resident          bool          `koanf:"resident"`
	RepublishInterval time.Duration `koanf:"republish_interval"`
	LogLevel          string        `koanf:"log_level"`
	// MetricsAddr, when set, serves prometheus metrics while resident.
	MetricsAddr string      `koanf:"metrics_addr"`
	Kafka       KafkaConfig `koanf:"kafka"`
}

// defaults seed every load, so a file or environment value always wins.
var defaults = map[string]interface{}{
	"schema_version":      SchemaVersion,
	"broadcaster":         DefaultBroadcaster,
	"parent_frame":        referenceframe.ParentFrame,
	"child_frame":         referenceframe.ChildFrame,
	"log_level":           "info",
	"kafka.required_acks": -1,
	"kafka.client_id":     DefaultKafkaClientID,
	"kafka.timeout":       DefaultKafkaTimeout,
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	cfg, err := unmarshal(newKoanf())
	if err != nil {
		// The defaults are static and always decode.
		panic(err)
	}
	return cfg
}

func newKoanf() *koanf.Koanf {
	k := koanf.New(".")
	for key, value := range defaults {
		//nolint:errcheck
		k.Set(key, value)
	}
	return k
}

// unmarshal decodes strictly: a key that maps to no Config field is an error, so a misspelled
// setting never silently falls back to its default.
func unmarshal(k *koanf.Koanf) (Config, error) {
	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "cannot decode config")
	}
	return cfg, nil
}

// Load merges the YAML file at path (skipped when empty or missing) with PUBTF__ environment
// variables, applies defaults and validates the result.
func Load(path string) (Config, error) {
	k := newKoanf()
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "cannot read config %q", path)
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SchemaVersion {
		return Config{}, errors.Errorf("config schema_version %q not supported (want %s)", sv, SchemaVersion)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, envDelim, envKeyValue), nil); err != nil {
		return Config{}, errors.Wrap(err, "cannot read environment")
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeyValue turns PUBTF__KAFKA__BROKERS=a,b into kafka__brokers=[a b].
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var errs error
	if err := referenceframe.ValidateFrameNames(c.ParentFrame, c.ChildFrame); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "invalid frames"))
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.RepublishInterval < 0 {
		errs = multierr.Append(errs, errors.Errorf("republish_interval must not be negative, got %s", c.RepublishInterval))
	}
	switch c.Kafka.RequiredAcks {
	case -1, 0, 1:
	default:
		errs = multierr.Append(errs, errors.Errorf("kafka.required_acks must be -1, 0 or 1, got %d", c.Kafka.RequiredAcks))
	}
	if c.Kafka.Timeout < 0 {
		errs = multierr.Append(errs, errors.Errorf("kafka.timeout must not be negative, got %s", c.Kafka.Timeout))
	}
	return errs
}
