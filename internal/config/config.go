package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
// restart.max_attempts is overridden by BOTVISOR_RESTART_MAX_ATTEMPTS.
const EnvPrefix = "BOTVISOR"

// Config is the immutable policy snapshot loaded once at startup.
type Config struct {
	Restart    RestartConfig    `mapstructure:"restart" json:"restart"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" json:"monitoring"`
	Advanced   AdvancedConfig   `mapstructure:"advanced" json:"advanced"`
	Units      UnitsConfig      `mapstructure:"units" json:"units"`
	Metrics    MetricsConfig    `mapstructure:"metrics" json:"metrics"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	History    HistoryConfig    `mapstructure:"history" json:"history"`
}

type RestartConfig struct {
	MaxAttempts              int     `mapstructure:"max_attempts" json:"max_attempts"`
	RestartDelay             float64 `mapstructure:"restart_delay" json:"restart_delay"` // seconds
	Autostart                bool    `mapstructure:"autostart" json:"autostart"`
	ResetCounterAfterMinutes int     `mapstructure:"reset_counter_after_minutes" json:"reset_counter_after_minutes"`
}

// Delay returns the wait between an unclean exit and the next start.
func (r RestartConfig) Delay() time.Duration { return seconds(r.RestartDelay) }

// ResetAfter returns the healthy-runtime window after which the restart
// counter is cleared. Zero means the counter is never cleared by time.
func (r RestartConfig) ResetAfter() time.Duration {
	if r.ResetCounterAfterMinutes <= 0 {
		return 0
	}
	if int64(r.ResetCounterAfterMinutes) > maxMinutes {
		return math.MaxInt64
	}
	return time.Duration(r.ResetCounterAfterMinutes) * time.Minute
}

type LoggingConfig struct {
	LogNormalOperations bool   `mapstructure:"log_normal_operations" json:"log_normal_operations"`
	LogErrors           bool   `mapstructure:"log_errors" json:"log_errors"`
	MaxLogFiles         int    `mapstructure:"max_log_files" json:"max_log_files"`
	ConsoleTimestamps   bool   `mapstructure:"console_timestamps" json:"console_timestamps"`
	DateOrganized       bool   `mapstructure:"date_organized" json:"date_organized"`
	Dir                 string `mapstructure:"dir" json:"dir"`
	MaxSizeMB           int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	Level               string `mapstructure:"level" json:"level"`
	File                string `mapstructure:"file" json:"file"`
}

type MonitoringConfig struct {
	StatusInterval         float64 `mapstructure:"status_interval" json:"status_interval"` // seconds
	MemoryWarningThreshold int     `mapstructure:"memory_warning_threshold" json:"memory_warning_threshold"`
	PerformanceLogging     bool    `mapstructure:"performance_logging" json:"performance_logging"`
}

// Interval returns the periodic status period, zero when disabled.
func (m MonitoringConfig) Interval() time.Duration {
	if m.StatusInterval <= 0 {
		return 0
	}
	return seconds(m.StatusInterval)
}

type AdvancedConfig struct {
	ShutdownGracePeriod float64 `mapstructure:"shutdown_grace_period" json:"shutdown_grace_period"` // seconds
	ForceKillTimeout    float64 `mapstructure:"force_kill_timeout" json:"force_kill_timeout"`       // seconds
	StartupDelay        int     `mapstructure:"startup_delay" json:"startup_delay"`                 // milliseconds
	DebugMode           bool    `mapstructure:"debug_mode" json:"debug_mode"`
}

func (a AdvancedConfig) Grace() time.Duration { return seconds(a.ShutdownGracePeriod) }

func (a AdvancedConfig) ForceKill() time.Duration { return seconds(a.ForceKillTimeout) }

func (a AdvancedConfig) StartupPause() time.Duration {
	if a.StartupDelay <= 0 {
		return 0
	}
	if int64(a.StartupDelay) > maxMillis {
		return math.MaxInt64
	}
	return time.Duration(a.StartupDelay) * time.Millisecond
}

// ShutdownWindow is the time between a shutdown request and the forced exit.
func (a AdvancedConfig) ShutdownWindow() time.Duration {
	g, k := a.Grace(), a.ForceKill()
	if g > math.MaxInt64-k {
		return math.MaxInt64
	}
	return g + k
}

// UnitsConfig describes where units live and how they are launched.
type UnitsConfig struct {
	Dir       string   `mapstructure:"dir" json:"dir"`
	Command   string   `mapstructure:"command" json:"command"`
	Env       []string `mapstructure:"env" json:"env"`
	Manifests []string `mapstructure:"manifests" json:"manifests"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" json:"listen"`
}

type ServerConfig struct {
	Listen    string `mapstructure:"listen" json:"listen"`
	BasePath  string `mapstructure:"base_path" json:"base_path"`
	TokenHash string `mapstructure:"token_hash" json:"-"`
}

type HistoryConfig struct {
	DSN    string `mapstructure:"dsn" json:"-"`
	Buffer int    `mapstructure:"buffer" json:"buffer"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Restart: RestartConfig{
			MaxAttempts:              5,
			RestartDelay:             3,
			Autostart:                true,
			ResetCounterAfterMinutes: 30,
		},
		Logging: LoggingConfig{
			LogNormalOperations: true,
			LogErrors:           true,
			MaxLogFiles:         10,
			ConsoleTimestamps:   true,
			DateOrganized:       true,
			Dir:                 "logs",
			MaxSizeMB:           50,
			Level:               "info",
		},
		Monitoring: MonitoringConfig{
			StatusInterval:         60,
			MemoryWarningThreshold: 500,
			PerformanceLogging:     true,
		},
		Advanced: AdvancedConfig{
			ShutdownGracePeriod: 5,
			ForceKillTimeout:    10,
			StartupDelay:        500,
		},
		Units: UnitsConfig{
			Dir:       "bots",
			Command:   "node .",
			Manifests: []string{"package.json", "bot.yaml", "bot.yml"},
		},
		Server: ServerConfig{
			BasePath: "/api",
		},
		History: HistoryConfig{
			Buffer: 256,
		},
	}
}

// Fallback records a key whose configured value was rejected in favour of
// the built-in default.
type Fallback struct {
	Key    string
	Value  any
	Reason string
}

func (f Fallback) String() string {
	return fmt.Sprintf("%s=%v: %s", f.Key, f.Value, f.Reason)
}

// Load reads the configuration document at path.
//
// A missing file yields defaults (with environment overrides applied). A
// document that cannot be parsed yields pure defaults together with a non-nil
// error the caller is expected to log as a warning. Individual keys holding a
// value of the wrong type or outside the accepted range keep their default and
// are reported as fallbacks.
func Load(path string) (Config, []Fallback, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType(configType(path))
			if err := v.ReadInConfig(); err != nil {
				return Defaults(), nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Defaults(), nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg := Defaults()
	d := decoder{v: v}

	d.int("restart.max_attempts", &cfg.Restart.MaxAttempts, nil)
	d.float("restart.restart_delay", &cfg.Restart.RestartDelay, durationSeconds)
	d.bool("restart.autostart", &cfg.Restart.Autostart)
	d.int("restart.reset_counter_after_minutes", &cfg.Restart.ResetCounterAfterMinutes, atMost(maxMinutes))

	d.bool("logging.log_normal_operations", &cfg.Logging.LogNormalOperations)
	d.bool("logging.log_errors", &cfg.Logging.LogErrors)
	d.int("logging.max_log_files", &cfg.Logging.MaxLogFiles, nil)
	d.bool("logging.console_timestamps", &cfg.Logging.ConsoleTimestamps)
	d.bool("logging.date_organized", &cfg.Logging.DateOrganized)
	d.string("logging.dir", &cfg.Logging.Dir, nonEmpty)
	d.int("logging.max_size_mb", &cfg.Logging.MaxSizeMB, positiveInt)
	d.string("logging.level", &cfg.Logging.Level, oneOf("debug", "info", "warn", "error"))
	d.string("logging.file", &cfg.Logging.File, nil)

	d.float("monitoring.status_interval", &cfg.Monitoring.StatusInterval, atMostSeconds)
	d.int("monitoring.memory_warning_threshold", &cfg.Monitoring.MemoryWarningThreshold, nil)
	d.bool("monitoring.performance_logging", &cfg.Monitoring.PerformanceLogging)

	d.float("advanced.shutdown_grace_period", &cfg.Advanced.ShutdownGracePeriod, durationSeconds)
	d.float("advanced.force_kill_timeout", &cfg.Advanced.ForceKillTimeout, durationSeconds)
	d.int("advanced.startup_delay", &cfg.Advanced.StartupDelay, nonNegativeMillis)
	d.bool("advanced.debug_mode", &cfg.Advanced.DebugMode)

	d.string("units.dir", &cfg.Units.Dir, nonEmpty)
	d.string("units.command", &cfg.Units.Command, nonEmpty)
	d.strings("units.env", &cfg.Units.Env, envPairs)
	d.strings("units.manifests", &cfg.Units.Manifests, nonEmptyList)

	d.string("metrics.listen", &cfg.Metrics.Listen, nil)

	d.string("server.listen", &cfg.Server.Listen, nil)
	d.string("server.base_path", &cfg.Server.BasePath, nil)
	d.string("server.token_hash", &cfg.Server.TokenHash, nil)

	d.string("history.dsn", &cfg.History.DSN, nil)
	d.int("history.buffer", &cfg.History.Buffer, positiveInt)

	return cfg, d.fallbacks, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

type decoder struct {
	v         *viper.Viper
	fallbacks []Fallback
}

func (d *decoder) int(key string, dst *int, check func(int) string) {
	decodeField(d, key, dst, check)
}

func (d *decoder) float(key string, dst *float64, check func(float64) string) {
	decodeField(d, key, dst, check)
}

func (d *decoder) bool(key string, dst *bool) {
	decodeField[bool](d, key, dst, nil)
}

func (d *decoder) string(key string, dst *string, check func(string) string) {
	decodeField(d, key, dst, check)
}

func (d *decoder) strings(key string, dst *[]string, check func([]string) string) {
	decodeField(d, key, dst, check)
}

// decodeField decodes one key into a value of its schema type. Values from the
// config document must already carry that type; environment values are
// always strings and are parsed.
func decodeField[T any](d *decoder, key string, dst *T, check func(T) string) {
	if !d.v.IsSet(key) {
		return
	}
	raw := d.v.Get(key)
	if raw == nil {
		return
	}
	_, fromEnv := os.LookupEnv(envName(key))

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: fromEnv,
		DecodeHook:       splitEnvList(fromEnv),
	})
	if err != nil {
		d.reject(key, raw, err.Error())
		return
	}
	if err := dec.Decode(raw); err != nil {
		d.reject(key, raw, typeReason(err))
		return
	}
	if check != nil {
		if reason := check(out); reason != "" {
			d.reject(key, raw, reason)
			return
		}
	}
	*dst = out
}

func (d *decoder) reject(key string, raw any, reason string) {
	d.fallbacks = append(d.fallbacks, Fallback{Key: key, Value: raw, Reason: reason})
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitEnvList turns "A=1,B=2" from the environment into a list.
func splitEnvList(fromEnv bool) mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if !fromEnv || from != reflect.String || to != reflect.Slice {
			return data, nil
		}
		s, _ := data.(string)
		if strings.TrimSpace(s) == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

func typeReason(err error) string {
	msg := err.Error()
	// mapstructure prefixes with the (empty) field name
	msg = strings.TrimPrefix(msg, "decoding failed due to the following error(s):\n\n")
	msg = strings.TrimPrefix(msg, "'' ")
	return "invalid type: " + msg
}

// Upper bounds of values converted to time.Duration.
const (
	maxSeconds = float64(math.MaxInt64 / int64(time.Second))
	maxMillis  = math.MaxInt64 / int64(time.Millisecond)
	maxMinutes = math.MaxInt64 / int64(time.Minute)
)

func durationSeconds(f float64) string {
	if f < 0 {
		return "must be >= 0"
	}
	return atMostSeconds(f)
}

func atMostSeconds(f float64) string {
	if math.IsNaN(f) || f > maxSeconds {
		return fmt.Sprintf("must be <= %.0f", maxSeconds)
	}
	return ""
}

func nonNegativeMillis(i int) string {
	if i < 0 {
		return "must be >= 0"
	}
	return atMost(maxMillis)(i)
}

func atMost(limit int64) func(int) string {
	return func(i int) string {
		if int64(i) > limit {
			return fmt.Sprintf("must be <= %d", limit)
		}
		return ""
	}
}

func positiveInt(i int) string {
	if i <= 0 {
		return "must be > 0"
	}
	return ""
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "must not be empty"
	}
	return ""
}

func nonEmptyList(l []string) string {
	if len(l) == 0 {
		return "must not be empty"
	}
	for _, s := range l {
		if strings.TrimSpace(s) == "" {
			return "must not contain empty entries"
		}
	}
	return ""
}

func envPairs(l []string) string {
	for _, kv := range l {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			return fmt.Sprintf("entry %q is not KEY=VALUE", kv)
		}
	}
	return ""
}

func oneOf(allowed ...string) func(string) string {
	return func(s string) string {
		for _, a := range allowed {
			if strings.EqualFold(s, a) {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))
	}
}

// seconds converts a config value, saturating instead of overflowing.
func seconds(f float64) time.Duration {
	switch {
	case f <= 0, math.IsNaN(f):
		return 0
	case f >= maxSeconds:
		return math.MaxInt64
	}
	return time.Duration(f * float64(time.Second))
}
