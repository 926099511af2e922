package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"

	PolicyPerRequest = "per-request"
	PolicyPooled     = "pooled"
)

// Config contains all runtime settings for the conversation log service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	StoreBackend          string
	StoreConnectionPolicy string
	StorePoolSize         int
	StoreCollection       string
	StoreDatabase         string
	StoreBoltPath         string

	VCAPLocalFile    string
	DBBindingNames   []string
	ToneBindingName  string
	ToneAnalyzerURL  string
	ToneAPIVersion   string
	ToneAnalyzerWait time.Duration
}

var defaults = map[string]any{
	"APP_BIND_ADDR":           ":8080",
	"APP_SHUTDOWN_TIMEOUT":    "15s",
	"APP_METRICS_NAMESPACE":   "convotone",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "console",
	"STORE_BACKEND":           BackendMongo,
	"STORE_CONNECTION_POLICY": PolicyPerRequest,
	"STORE_POOL_SIZE":         "1",
	"STORE_COLLECTION":        "logs",
	"STORE_DATABASE":          "",
	"STORE_BOLT_PATH":         "data/logs.bolt",
	"VCAP_LOCAL_FILE":         "vcap-local.json",
	"DB_BINDING_NAMES":        "insurance-bot-db,compose-for-mongodb",
	"TONE_BINDING_NAME":       "tone_analyzer",
	"TONE_ANALYZER_URL":       "https://gateway.watsonplatform.net/tone-analyzer/api/",
	"TONE_ANALYZER_VERSION":   "2016-05-19",
	"TONE_ANALYZER_TIMEOUT":   "0s",
}

// Keys lists every setting Load understands, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Effective returns the raw value of every setting after defaults, the config
// file and the environment are applied. Values are not validated.
func Effective(configFile string) (map[string]string, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(defaults))
	for _, k := range Keys() {
		out[k] = str(v, k)
	}
	return out, nil
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load reads settings from the environment and, when configFile is set, from
// that file. Environment variables win over the file.
func Load(configFile string) (Config, error) {
	v, err := newViper(configFile)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:              str(v, "APP_BIND_ADDR"),
		MetricsNamespace:      str(v, "APP_METRICS_NAMESPACE"),
		LogLevel:              strings.ToLower(str(v, "LOG_LEVEL")),
		LogFormat:             strings.ToLower(str(v, "LOG_FORMAT")),
		StoreBackend:          strings.ToLower(str(v, "STORE_BACKEND")),
		StoreConnectionPolicy: strings.ToLower(str(v, "STORE_CONNECTION_POLICY")),
		StoreCollection:       str(v, "STORE_COLLECTION"),
		StoreDatabase:         str(v, "STORE_DATABASE"),
		StoreBoltPath:         str(v, "STORE_BOLT_PATH"),
		VCAPLocalFile:         str(v, "VCAP_LOCAL_FILE"),
		DBBindingNames:        splitList(str(v, "DB_BINDING_NAMES")),
		ToneBindingName:       str(v, "TONE_BINDING_NAME"),
		ToneAnalyzerURL:       str(v, "TONE_ANALYZER_URL"),
		ToneAPIVersion:        str(v, "TONE_ANALYZER_VERSION"),
	}

	cfg.ShutdownTimeout, err = duration(v, "APP_SHUTDOWN_TIMEOUT")
	if err != nil {
		return Config{}, err
	}
	cfg.ToneAnalyzerWait, err = duration(v, "TONE_ANALYZER_TIMEOUT")
	if err != nil {
		return Config{}, err
	}
	cfg.StorePoolSize, err = integer(v, "STORE_POOL_SIZE")
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that Load cannot default away.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMongo, BackendPostgres, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of mongo|postgres|bolt|memory, got %q", c.StoreBackend)
	}
	switch c.StoreConnectionPolicy {
	case PolicyPerRequest, PolicyPooled:
	default:
		return fmt.Errorf("STORE_CONNECTION_POLICY must be per-request or pooled, got %q", c.StoreConnectionPolicy)
	}
	if c.StorePoolSize < 1 {
		return errors.New("STORE_POOL_SIZE must be at least 1")
	}
	if c.ShutdownTimeout < time.Second {
		return errors.New("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	if c.ToneAnalyzerWait < 0 {
		return errors.New("TONE_ANALYZER_TIMEOUT must be >= 0")
	}
	if strings.TrimSpace(c.StoreCollection) == "" {
		return errors.New("STORE_COLLECTION must not be empty")
	}
	if c.StoreBackend == BackendBolt && strings.TrimSpace(c.StoreBoltPath) == "" {
		return errors.New("STORE_BOLT_PATH must be set for the bolt backend")
	}
	if c.NeedsDatabaseBinding() && len(c.DBBindingNames) == 0 {
		return errors.New("DB_BINDING_NAMES must name at least one service")
	}
	return nil
}

// NeedsDatabaseBinding reports whether the configured backend connects over
// the network using bound credentials.
func (c Config) NeedsDatabaseBinding() bool {
	return c.StoreBackend == BackendMongo || c.StoreBackend == BackendPostgres
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(str(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func integer(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(str(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
