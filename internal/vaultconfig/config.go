// Package vaultconfig loads a configuration file for the provara CLI: where
// the vault lives, how often to checkpoint, which peers to sync with, and
// how strictly to resolve signing keys. cmd/provara does not call Load; its
// flags carry their own defaults. It never touches vault/event files
// themselves, which stay canonical JSON per spec; this is YAML because it
// is read by humans before the vault exists.
package vaultconfig

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/provara-protocol/provara/internal/checkpoint"
	"github.com/provara-protocol/provara/internal/reducer"
	"github.com/provara-protocol/provara/internal/verrors"
)

// Duration wraps time.Duration so config files can write "30s", "5m",
// "24h" instead of a raw nanosecond count.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("vaultconfig: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// PeerConfig names one sync partner this vault exchanges deltas with.
type PeerConfig struct {
	Name     string   `yaml:"name"`
	Endpoint string   `yaml:"endpoint"`
	Actors   []string `yaml:"actors,omitempty"`
}

// KeyringConfig governs how signer keys are resolved during verify and
// sync import.
type KeyringConfig struct {
	// Strict, when true (the default), refuses events signed by a
	// revoked key even if it was active at signing time. Set false to
	// fall back to historical resolution, accepting keys that were
	// valid when the event was produced.
	Strict bool   `yaml:"strict"`
	Path   string `yaml:"path"`
}

// CheckpointConfig governs the streaming reducer's snapshot cadence.
type CheckpointConfig struct {
	Interval int    `yaml:"interval"`
	Dir      string `yaml:"dir"`
}

// ReducerConfig governs fold behavior.
type ReducerConfig struct {
	AttestationThreshold int `yaml:"attestation_threshold"`
}

// LoggingConfig governs CLI log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full provara CLI configuration, loaded from
// ~/.config/provara/config.yaml or $PROVARA_CONFIG.
type Config struct {
	VaultPath    string           `yaml:"vault_path"`
	ActorID      string           `yaml:"actor_id"`
	Keyring      KeyringConfig    `yaml:"keyring"`
	Checkpoint   CheckpointConfig `yaml:"checkpoint"`
	Reducer      ReducerConfig    `yaml:"reducer"`
	Logging      LoggingConfig    `yaml:"logging"`
	SyncTimeout  Duration         `yaml:"sync_timeout"`
	Peers        []PeerConfig     `yaml:"peers,omitempty"`
}

// EnvVar is the override for the config file's own location.
const EnvVar = "PROVARA_CONFIG"

// DefaultPath is where Load looks when EnvVar is unset.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/provara/config.yaml"
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} references in
// content with the environment's value, or the default when VAR is unset
// or empty.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[3]
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		return def
	})
}

// Load reads and parses the config file at path. A missing file is not
// an error: Load returns Defaults() so the CLI works with zero setup.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, verrors.Wrap(verrors.CodeConfigInvalid, "reading config file", err).WithContext("path", path)
	}

	substituted := substituteEnvVars(string(raw))
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return nil, verrors.Wrap(verrors.CodeConfigInvalid, "parsing config YAML", err).WithContext("path", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefaultPath loads from $PROVARA_CONFIG if set, else DefaultPath().
// PROVARA_CHECKPOINT_INTERVAL, when set, overrides the file's checkpoint
// interval without requiring a config edit, matching the env-override
// knobs operators expect for one-off runs.
func LoadDefaultPath() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultPath()
	}
	var cfg *Config
	var err error
	if path == "" {
		cfg = Defaults()
	} else {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}
	cfg.Checkpoint.Interval = getEnvInt("PROVARA_CHECKPOINT_INTERVAL", cfg.Checkpoint.Interval)
	return cfg, nil
}

// Defaults returns a Config with every ambient field set to its
// conservative default, equivalent to an empty config file.
func Defaults() *Config {
	return &Config{
		VaultPath: "./vault",
		Keyring: KeyringConfig{
			Strict: true,
			Path:   "./vault/keyring.json",
		},
		Checkpoint: CheckpointConfig{
			Interval: checkpoint.DefaultInterval,
			Dir:      "./vault/checkpoints",
		},
		Reducer: ReducerConfig{
			AttestationThreshold: reducer.DefaultAttestationThreshold,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		SyncTimeout: Duration(30 * time.Second),
	}
}

// applyDefaults fills zero-value fields left unset by a partial config
// file with their Defaults() equivalent.
func (c *Config) applyDefaults() {
	d := Defaults()
	if c.VaultPath == "" {
		c.VaultPath = d.VaultPath
	}
	if c.Keyring.Path == "" {
		c.Keyring.Path = d.Keyring.Path
	}
	if c.Checkpoint.Interval == 0 {
		c.Checkpoint.Interval = d.Checkpoint.Interval
	}
	if c.Checkpoint.Dir == "" {
		c.Checkpoint.Dir = d.Checkpoint.Dir
	}
	if c.Reducer.AttestationThreshold == 0 {
		c.Reducer.AttestationThreshold = d.Reducer.AttestationThreshold
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = d.SyncTimeout
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate rejects a config with out-of-range or unrecognized fields.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return verrors.New(verrors.CodeConfigInvalid, "vault_path must not be empty")
	}
	if c.Checkpoint.Interval <= 0 {
		return verrors.Newf(verrors.CodeConfigInvalid, "checkpoint.interval must be positive, got %d", c.Checkpoint.Interval)
	}
	if c.Reducer.AttestationThreshold <= 0 {
		return verrors.Newf(verrors.CodeConfigInvalid, "reducer.attestation_threshold must be positive, got %d", c.Reducer.AttestationThreshold)
	}
	if !validLogLevels[c.Logging.Level] {
		return verrors.Newf(verrors.CodeConfigInvalid, "logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		return verrors.Newf(verrors.CodeConfigInvalid, "logging.format %q is not one of text|json", c.Logging.Format)
	}
	for _, p := range c.Peers {
		if p.Name == "" || p.Endpoint == "" {
			return verrors.New(verrors.CodeConfigInvalid, "each peer requires a name and endpoint")
		}
	}
	return nil
}

// getEnvInt reads an integer environment variable, falling back to def
// when unset or unparseable. LoadDefaultPath uses it to layer the
// PROVARA_CHECKPOINT_INTERVAL override on top of the config file.
func getEnvInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
