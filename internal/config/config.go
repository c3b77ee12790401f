// Package config handles application configuration loading from YAML and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "examprep/internal/utils"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable that points at the YAML config file
const ConfigFileEnv = "EXAMPREP_CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	Media         MediaConfig         `json:"media" yaml:"media"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	JWTSecret     string   `json:"jwt_secret" yaml:"jwt_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// LLMConfig describes the OpenAI-compatible completion endpoint and its credential pool.
// Keys are tried in order, advancing on every failure.
type LLMConfig struct {
	BaseURL         string        `json:"base_url" yaml:"base_url"`
	CompletionsPath string        `json:"completions_path" yaml:"completions_path"`
	Model           string        `json:"model" yaml:"model"`
	Temperature     float64       `json:"temperature" yaml:"temperature"`
	APIKeys         []string      `json:"api_keys" yaml:"api_keys"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
}

// MediaConfig configures the text-to-speech and image URL collaborators
type MediaConfig struct {
	TTSBasePath    string        `json:"tts_base_path" yaml:"tts_base_path"`
	ImageBaseURL   string        `json:"image_base_url" yaml:"image_base_url"`
	ImageWidth     int           `json:"image_width" yaml:"image_width"`
	ImageHeight    int           `json:"image_height" yaml:"image_height"`
	MaxConcurrency int           `json:"max_concurrency" yaml:"max_concurrency"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

// RedisConfig configures the optional generated-test cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "examprep-backend"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`   // Defer tracing to the eBPF auto-instrumentation SDK
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	return config, nil
}

// applyDefaults fills in values the service cannot run without
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.LLM.CompletionsPath == "" {
		c.LLM.CompletionsPath = DefaultCompletionsPath
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = AIRequestTimeout
	}
	if c.Media.TTSBasePath == "" {
		c.Media.TTSBasePath = DefaultTTSBasePath
	}
	if c.Media.ImageBaseURL == "" {
		c.Media.ImageBaseURL = DefaultImageBaseURL
	}
	if c.Media.ImageWidth <= 0 {
		c.Media.ImageWidth = DefaultImageWidth
	}
	if c.Media.ImageHeight <= 0 {
		c.Media.ImageHeight = DefaultImageHeight
	}
	if c.Media.MaxConcurrency <= 0 {
		c.Media.MaxConcurrency = DefaultMediaConcurrency
	}
	if c.Media.Timeout <= 0 {
		c.Media.Timeout = MediaRequestTimeout
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = DefaultTestCacheTTL
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment
// variables named after their yaml tags, e.g. LLM_API_KEYS or DATABASE_URL.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}
		envVal := os.Getenv(envKey)

		if field.Type() == durationType {
			if envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			// comma separated, e.g. LLM_API_KEYS=key1,key2
			if envVal != "" && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(envVal, ",")
				slice := make([]string, 0, len(parts))
				for _, p := range parts {
					if p = strings.TrimSpace(p); p != "" {
						slice = append(slice, p)
					}
				}
				field.Set(reflect.ValueOf(slice))
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by EXAMPREP_CONFIG_FILE, or config.yaml.
// A missing default file yields an empty config so the service can run from env alone.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return config, err
}

func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
